// Package main runs the RFID agent: it connects to a UHF reader, applies the
// configured settings, streams tag reports to WebSocket clients and
// optionally records them to a capture file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dotside-studios/rfid-agent/buildinfo"
	"github.com/dotside-studios/rfid-agent/config"
	"github.com/dotside-studios/rfid-agent/console"
	"github.com/dotside-studios/rfid-agent/rfid"
	"github.com/dotside-studios/rfid-agent/rfid/bridge"
	"github.com/dotside-studios/rfid-agent/rfid/simulator"
)

// cliFlags holds command-line overrides for the config file.
type cliFlags struct {
	configPath  string
	writeConfig bool
	version     bool
	interactive bool

	driver      string
	address     string
	bridgeURL   string
	antennas    string
	txPower     float64
	powerPolicy string
	port        int
	apiSecret   string
	noMDNS      bool
	capturePath string
	logLevel    string
	logFormat   string
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, buildinfo.Name, "config.yaml")
}

func parseFlags(fs *flag.FlagSet, args []string) (*cliFlags, error) {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", defaultConfigPath(), "Configuration file path")
	fs.BoolVar(&f.writeConfig, "write-config", false, "Write the effective configuration to -config and exit")
	fs.BoolVar(&f.version, "version", false, "Print version information and exit")
	fs.BoolVar(&f.interactive, "interactive", false, "Enable interactive command mode")

	fs.StringVar(&f.driver, "driver", "", "Reader driver: bridge or simulator")
	fs.StringVar(&f.address, "address", "", "Reader IP address or hostname")
	fs.StringVar(&f.bridgeURL, "bridge-url", "", "Reader bridge websocket URL (bridge driver)")
	fs.StringVar(&f.antennas, "antennas", "", "Antenna mask applied on connect, e.g. 1100")
	fs.Float64Var(&f.txPower, "tx-power", 0, "Transmit power in dBm applied on connect")
	fs.StringVar(&f.powerPolicy, "power-policy", "", "Out-of-range power handling: passthrough or strict")
	fs.IntVar(&f.port, "port", config.DefaultPort, "Port to listen on for the web interface")
	fs.StringVar(&f.apiSecret, "api-secret", "", "API secret required by websocket clients (optional)")
	fs.BoolVar(&f.noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	fs.StringVar(&f.capturePath, "capture", "", "Append tag reports to this CBOR capture file")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: text or json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// apply copies every flag set on the command line over cfg.
func (f *cliFlags) apply(fs *flag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "driver":
			cfg.Reader.Driver = f.driver
		case "address":
			cfg.Reader.Address = f.address
		case "bridge-url":
			cfg.Reader.BridgeURL = f.bridgeURL
		case "antennas":
			cfg.Reader.Antennas = f.antennas
		case "tx-power":
			power := f.txPower
			cfg.Reader.TxPowerDbm = &power
		case "power-policy":
			if perr := cfg.Reader.PowerPolicy.UnmarshalText([]byte(f.powerPolicy)); perr != nil {
				err = perr
			}
		case "port":
			cfg.Server.Port = f.port
		case "api-secret":
			cfg.Server.APISecret = f.apiSecret
		case "no-mdns":
			cfg.Server.EnableMDNS = !f.noMDNS
		case "capture":
			cfg.Capture.Path = f.capturePath
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		}
	})
	if err != nil {
		return err
	}
	return cfg.Validate()
}

func newDriver(cfg *config.Config, logger *slog.Logger) rfid.Driver {
	if cfg.Reader.Driver == config.DriverBridge {
		return bridge.New(bridge.Options{
			URL:         cfg.Reader.BridgeURL,
			CallTimeout: cfg.Reader.RequestTimeout,
			Logger:      logger,
		})
	}
	return simulator.New(simulator.Config{Logger: logger})
}

func main() {
	fs := flag.NewFlagSet(buildinfo.Name, flag.ExitOnError)
	flags, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if flags.version {
		fmt.Println(buildinfo.Banner())
		return
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := flags.apply(fs, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if flags.writeConfig {
		if err := cfg.Save(flags.configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", flags.configPath)
		return
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	logger.Info("starting "+buildinfo.DisplayName, buildinfo.Attrs()...)

	if err := run(cfg, flags.interactive, logger); err != nil {
		logger.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, interactive bool, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	agent := NewAgent(cfg, newDriver(cfg, logger), logger)

	if interactive {
		con, err := console.New(agent.Reader, cfg.Reader.RequestTimeout)
		if err != nil {
			return err
		}
		agent.Console = con
	}

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	err := agent.Start(startCtx)
	startCancel()
	if err != nil {
		return err
	}

	if agent.Console != nil {
		go agent.Console.Run(ctx, cancel)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err = <-agent.ServerErr():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	agent.Stop(stopCtx)
	return err
}
