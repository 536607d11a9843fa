// Package console provides the interactive command-line interface for the agent.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/dotside-studios/rfid-agent/buildinfo"
	"github.com/dotside-studios/rfid-agent/capture"
	"github.com/dotside-studios/rfid-agent/protocol"
	"github.com/dotside-studios/rfid-agent/rfid"
)

// Reader is the session surface the console drives.
type Reader interface {
	Status() rfid.Status
	FeatureSet() (rfid.FeatureSet, bool)
	DispatchStats() rfid.DispatchStats
	GetTxPower(ctx context.Context) ([]float64, error)
	SetTxPower(ctx context.Context, dbm float64) error
	GetAntennaConfig(ctx context.Context) (rfid.AntennaMask, error)
	SetAntennaConfig(ctx context.Context, mask rfid.AntennaMask) error
	SetMode(ctx context.Context, readerMode rfid.ReaderMode, searchMode rfid.SearchMode, session uint16) error
	SetReportFlags(ctx context.Context, includeAntenna, includeChannel, includeRssi bool) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Read(ctx context.Context, epcTarget []byte, bank rfid.MemoryBank, wordPointer, wordCount uint16) ([]byte, error)
}

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// Commands executes console command lines against a Reader.
type Commands struct {
	reader  Reader
	timeout time.Duration
	watch   atomic.Bool
}

// NewCommands creates a command executor. timeout bounds each reader call.
func NewCommands(reader Reader, timeout time.Duration) *Commands {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Commands{reader: reader, timeout: timeout}
}

// Watching reports whether tag reports should be echoed.
func (c *Commands) Watching() bool {
	return c.watch.Load()
}

// Exec runs one command line, writing output to out. It returns errQuit
// for quit/exit; other errors have already been printed.
func (c *Commands) Exec(ctx context.Context, out io.Writer, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var err error
	switch cmd {
	case "help", "?":
		printHelp(out)
	case "info", "i":
		c.cmdInfo(out)
	case "antennas", "ant":
		err = c.cmdAntennas(ctx, out, args)
	case "power", "p":
		err = c.cmdPower(ctx, out, args)
	case "mode":
		err = c.cmdMode(ctx, out, args)
	case "flags":
		err = c.cmdFlags(ctx, out, args)
	case "start":
		err = c.reader.Start(ctx)
		if err == nil {
			fmt.Fprintln(out, "Inventory started")
		}
	case "stop":
		err = c.reader.Stop(ctx)
		if err == nil {
			fmt.Fprintln(out, "Inventory stopped")
		}
	case "read", "r":
		err = c.cmdRead(ctx, out, args)
	case "replay":
		err = c.cmdReplay(out, args)
	case "watch", "w":
		on := !c.watch.Load()
		c.watch.Store(on)
		fmt.Fprintf(out, "Tag echo %s\n", onOff(on))
	case "quit", "exit", "q":
		return errQuit
	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
		return nil
	}

	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return err
}

func (c *Commands) cmdInfo(out io.Writer) {
	st := c.reader.Status()
	fmt.Fprintf(out, "Session:   %s\n", st.SessionID)
	fmt.Fprintf(out, "Address:   %s\n", st.Address)
	fmt.Fprintf(out, "Connected: %v\n", st.Connected)
	fmt.Fprintf(out, "Streaming: %v\n", st.Streaming)

	if f, ok := c.reader.FeatureSet(); ok {
		fmt.Fprintf(out, "Model:     %s (%s, firmware %s)\n", f.ModelName, f.Region, f.FirmwareVersion)
		fmt.Fprintf(out, "Antennas:  %d\n", f.AntennaCount)
		fmt.Fprintf(out, "Power:     %.2f to %.2f dBm\n", f.MinTxPowerDbm, f.MaxTxPowerDbm)
	}

	stats := c.reader.DispatchStats()
	fmt.Fprintf(out, "Reports:   %d delivered, %d dropped, %d failed\n", stats.Delivered, stats.Dropped, stats.Failed)
}

func (c *Commands) cmdAntennas(ctx context.Context, out io.Writer, args []string) error {
	if len(args) == 0 {
		mask, err := c.reader.GetAntennaConfig(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Antennas: %s (ports %v)\n", mask, mask.Ports())
		return nil
	}

	mask, err := rfid.ParseAntennaMask(strings.Join(args, ","))
	if err != nil {
		return err
	}
	if err := c.reader.SetAntennaConfig(ctx, mask); err != nil {
		return err
	}
	fmt.Fprintf(out, "Antennas set to %s\n", mask)
	return nil
}

func (c *Commands) cmdPower(ctx context.Context, out io.Writer, args []string) error {
	if len(args) == 0 {
		powers, err := c.reader.GetTxPower(ctx)
		if err != nil {
			return err
		}
		for i, p := range powers {
			fmt.Fprintf(out, "  antenna %d: %.2f dBm\n", i+1, p)
		}
		return nil
	}

	dbm, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid power %q", args[0])
	}
	if err := c.reader.SetTxPower(ctx, dbm); err != nil {
		return err
	}
	fmt.Fprintf(out, "Tx power set to %.2f dBm\n", dbm)
	return nil
}

func (c *Commands) cmdMode(ctx context.Context, out io.Writer, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: mode <reader-mode> <search-mode> <session>")
	}
	readerMode, err := rfid.ParseReaderMode(args[0])
	if err != nil {
		return err
	}
	searchMode, err := rfid.ParseSearchMode(args[1])
	if err != nil {
		return err
	}
	session, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid session %q", args[2])
	}
	if err := c.reader.SetMode(ctx, readerMode, searchMode, uint16(session)); err != nil {
		return err
	}
	fmt.Fprintf(out, "Mode set to %s/%s session %d\n", readerMode, searchMode, session)
	return nil
}

func (c *Commands) cmdFlags(ctx context.Context, out io.Writer, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: flags <antenna> <channel> <rssi>")
	}
	var flags [3]bool
	for i, a := range args {
		v, err := strconv.ParseBool(a)
		if err != nil {
			return fmt.Errorf("invalid flag %q", a)
		}
		flags[i] = v
	}
	if err := c.reader.SetReportFlags(ctx, flags[0], flags[1], flags[2]); err != nil {
		return err
	}
	fmt.Fprintf(out, "Report flags: antenna=%s channel=%s rssi=%s\n", onOff(flags[0]), onOff(flags[1]), onOff(flags[2]))
	return nil
}

func (c *Commands) cmdRead(ctx context.Context, out io.Writer, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: read <epc> <bank> <word-pointer> <word-count>")
	}
	epc, err := protocol.ParseEPC(args[0])
	if err != nil {
		return err
	}
	bank, err := rfid.ParseMemoryBank(args[1])
	if err != nil {
		return err
	}
	ptr, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid word pointer %q", args[2])
	}
	count, err := strconv.ParseUint(args[3], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid word count %q", args[3])
	}

	data, err := c.reader.Read(ctx, epc, bank, uint16(ptr), uint16(count))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s[%d:+%d] = %s\n", rfid.FormatEpc(epc), bank, ptr, count, rfid.FormatEpc(data))
	return nil
}

// cmdReplay prints the reports stored in a capture file. It does not touch
// the reader.
func (c *Commands) cmdReplay(out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: replay <capture-file>")
	}
	n, err := capture.Replay(args[0], func(r rfid.TagReport) {
		fmt.Fprintln(out, FormatReport(r))
	})
	fmt.Fprintf(out, "Replayed %d reports from %s\n", n, args[0])
	return err
}

// FormatReport renders a tag report as a single console line.
func FormatReport(r rfid.TagReport) string {
	var b strings.Builder
	b.WriteString(r.EpcHex())
	if r.AntennaPortNumber != nil {
		fmt.Fprintf(&b, " ant=%d", *r.AntennaPortNumber)
	}
	if r.ChannelInMhz != nil {
		fmt.Fprintf(&b, " ch=%.2fMHz", *r.ChannelInMhz)
	}
	if r.PeakRssiInDbm != nil {
		fmt.Fprintf(&b, " rssi=%.1fdBm", *r.PeakRssiInDbm)
	}
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func printHelp(out io.Writer) {
	fmt.Fprintf(out, `
%s Commands:
  Reader:
    info                          - Show session, capabilities and dispatch counters
    antennas [mask]               - Show or set enabled antennas (e.g. 0110)
    power [dbm]                   - Show or set transmit power
    mode <reader> <search> <n>    - Set reader mode, search mode and session
    flags <ant> <chan> <rssi>     - Choose optional report fields (true/false)

  Inventory:
    start                         - Start streaming tag reports
    stop                          - Stop streaming
    watch                         - Toggle echo of tag reports
    read <epc> <bank> <ptr> <n>   - Read n words from a tag memory bank
    replay <file>                 - Print the reports stored in a capture file

  Other:
    help                          - Show this help
    quit                          - Exit

`, buildinfo.DisplayName)
}

// Console is the readline front end for Commands.
type Console struct {
	*Commands
	rl *readline.Instance
}

// New creates a console prompting on the terminal.
func New(reader Reader, timeout time.Duration) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rfid> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{Commands: NewCommands(reader, timeout), rl: rl}, nil
}

// Stdout returns a writer that redraws the prompt after output.
// Use it for log output so lines don't clobber the input.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// ShowReport echoes a tag report when watch is on.
func (c *Console) ShowReport(r rfid.TagReport) {
	if c.Watching() {
		fmt.Fprintln(c.rl.Stdout(), FormatReport(r))
	}
}

// Run reads commands until quit, EOF or ctx is done, then calls cancel.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	fmt.Fprintln(c.rl.Stdout(), buildinfo.Banner())
	printHelp(c.rl.Stdout())

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		if err := c.Exec(ctx, c.rl.Stdout(), line); errors.Is(err, errQuit) {
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
	}
}
