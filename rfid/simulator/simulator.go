// Package simulator provides an in-memory rfid.Driver that behaves like a
// small fixed reader with a static tag population. It is used for demos and
// for exercising the session layer without hardware.
package simulator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dotside-studios/rfid-agent/rfid"
)

// DefaultInterval is how often a started simulator reports the tags in view.
const DefaultInterval = 250 * time.Millisecond

var (
	errNotConnected     = errors.New("simulator: not connected")
	errAlreadyConnected = errors.New("simulator: already connected")
	errTagNotFound      = errors.New("simulator: tag not in field")
)

// Tag is one simulated transponder.
type Tag struct {
	Epc  []uint16
	Tid  []byte
	User []byte

	// Ports lists the antenna ports that see the tag. Empty means every port.
	Ports []uint16

	// PeakRssiInDbm is the signal strength at port 1; further ports read
	// one dB weaker each.
	PeakRssiInDbm float64
}

func (t Tag) seenBy(port uint16) bool {
	if len(t.Ports) == 0 {
		return true
	}
	for _, p := range t.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// memory returns the content of bank as the tag would report it.
func (t Tag) memory(bank rfid.MemoryBank) []byte {
	switch bank {
	case rfid.MemoryBankReserved:
		return make([]byte, 8)
	case rfid.MemoryBankEpc:
		// StoredCRC, PC word, EPC.
		mem := make([]byte, 4, 4+2*len(t.Epc))
		binary.BigEndian.PutUint16(mem[2:], uint16(len(t.Epc))<<11)
		return append(mem, rfid.EpcWordsToBytes(t.Epc)...)
	case rfid.MemoryBankTid:
		return t.Tid
	case rfid.MemoryBankUser:
		return t.User
	}
	return nil
}

// Config configures a Simulator. Zero values are replaced by defaults.
type Config struct {
	Features      rfid.FeatureSet
	Defaults      *rfid.Settings
	Tags          []Tag
	ChannelsInMhz []float64
	Interval      time.Duration
	Clock         Clock
	Logger        *slog.Logger
}

// Simulator implements rfid.Driver.
type Simulator struct {
	features rfid.FeatureSet
	defaults *rfid.Settings
	tags     []Tag
	channels []float64
	interval time.Duration
	clock    Clock
	logger   *slog.Logger

	mu        sync.Mutex
	connected bool
	address   string
	settings  *rfid.Settings
	handler   rfid.TagsReportedHandler
	stopCh    chan struct{}
	wg        sync.WaitGroup
	rounds    int
}

// New creates a simulator from cfg.
func New(cfg Config) *Simulator {
	if cfg.Features.AntennaCount == 0 {
		cfg.Features = DefaultFeatureSet()
	}
	if cfg.Defaults == nil {
		cfg.Defaults = DefaultSettings(cfg.Features.AntennaCount)
	}
	if cfg.Tags == nil {
		cfg.Tags = DefaultTags()
	}
	if len(cfg.ChannelsInMhz) == 0 {
		cfg.ChannelsInMhz = []float64{902.75, 915.25, 927.25}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Simulator{
		features: cfg.Features,
		defaults: cfg.Defaults.Clone(),
		tags:     cfg.Tags,
		channels: cfg.ChannelsInMhz,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "simulator"),
		settings: cfg.Defaults.Clone(),
	}
}

// DefaultFeatureSet describes a four-port reader.
func DefaultFeatureSet() rfid.FeatureSet {
	return rfid.FeatureSet{
		ModelName:       "Simulated UHF Reader",
		Region:          "FCC",
		FirmwareVersion: "sim-1.0.0",
		AntennaCount:    4,
		MinTxPowerDbm:   10,
		MaxTxPowerDbm:   31.5,
	}
}

// DefaultSettings returns factory settings for a reader with antennaCount ports.
func DefaultSettings(antennaCount int) *rfid.Settings {
	s := &rfid.Settings{
		ReaderMode:            rfid.ReaderModeMaxThroughput,
		SearchMode:            rfid.SearchModeDualTarget,
		Session:               1,
		TagPopulationEstimate: 32,
	}
	for i := 0; i < antennaCount; i++ {
		port := uint16(i + 1)
		s.Antennas = append(s.Antennas, rfid.AntennaConfig{
			PortNumber:       port,
			PortName:         rfid.PortName(port),
			IsEnabled:        port == 1,
			TxPowerInDbm:     30,
			MaxRxSensitivity: true,
		})
	}
	return s
}

// DefaultTags is a small demo population.
func DefaultTags() []Tag {
	return []Tag{
		{
			Epc:           []uint16{0x3034, 0x257B, 0xF7D4, 0x0001},
			Tid:           []byte{0xE2, 0x80, 0x11, 0x60, 0x20, 0x00, 0x00, 0x01},
			PeakRssiInDbm: -52,
		},
		{
			Epc:           []uint16{0x3034, 0x257B, 0xF7D4, 0x0002},
			Tid:           []byte{0xE2, 0x80, 0x11, 0x60, 0x20, 0x00, 0x00, 0x02},
			User:          []byte("SIMULATED-USER01"),
			Ports:         []uint16{1, 2},
			PeakRssiInDbm: -61,
		},
		{
			Epc:           []uint16{0xE200, 0x001A, 0x2211, 0x0123, 0x0456, 0x0789},
			Tid:           []byte{0xE2, 0x00, 0x34, 0x12, 0x01, 0x02, 0x03, 0x04},
			Ports:         []uint16{3},
			PeakRssiInDbm: -70,
		},
	}
}

// Connect opens the simulated connection.
func (s *Simulator) Connect(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return errAlreadyConnected
	}
	s.connected = true
	s.address = address
	s.logger.Info("simulated reader connected", "address", address)
	return nil
}

// Disconnect stops inventory and closes the simulated connection.
func (s *Simulator) Disconnect() error {
	s.stopLoop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errNotConnected
	}
	s.connected = false
	s.settings = s.defaults.Clone()
	return nil
}

// QueryFeatureSet returns the configured feature set.
func (s *Simulator) QueryFeatureSet(ctx context.Context) (rfid.FeatureSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return rfid.FeatureSet{}, errNotConnected
	}
	return s.features, nil
}

// QueryDefaultSettings returns a copy of the factory settings.
func (s *Simulator) QueryDefaultSettings(ctx context.Context) (*rfid.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, errNotConnected
	}
	return s.defaults.Clone(), nil
}

// QuerySettings returns a copy of the active settings.
func (s *Simulator) QuerySettings(ctx context.Context) (*rfid.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, errNotConnected
	}
	return s.settings.Clone(), nil
}

// ApplySettings validates settings the way a reader does and stores them.
func (s *Simulator) ApplySettings(ctx context.Context, settings *rfid.Settings) error {
	if settings == nil {
		return errors.New("simulator: nil settings")
	}
	if err := s.validate(settings); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errNotConnected
	}
	s.settings = settings.Clone()
	return nil
}

func (s *Simulator) validate(settings *rfid.Settings) error {
	seen := make(map[uint16]bool, len(settings.Antennas))
	enabled := 0
	for _, a := range settings.Antennas {
		if a.PortNumber < 1 || int(a.PortNumber) > s.features.AntennaCount {
			return fmt.Errorf("simulator: antenna port %d does not exist", a.PortNumber)
		}
		if seen[a.PortNumber] {
			return fmt.Errorf("simulator: antenna port %d configured twice", a.PortNumber)
		}
		seen[a.PortNumber] = true
		if !s.features.PowerInRange(a.TxPowerInDbm) {
			return fmt.Errorf("simulator: tx power %.2f dBm on port %d outside [%.2f, %.2f]",
				a.TxPowerInDbm, a.PortNumber, s.features.MinTxPowerDbm, s.features.MaxTxPowerDbm)
		}
		if a.IsEnabled {
			enabled++
		}
	}
	if enabled == 0 {
		return errors.New("simulator: no antenna enabled")
	}
	return nil
}

// OnTagsReported registers the batch handler.
func (s *Simulator) OnTagsReported(handler rfid.TagsReportedHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Start begins periodic inventory rounds.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errNotConnected
	}
	if s.stopCh != nil {
		return nil
	}

	stopCh := make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)
	s.stopCh = stopCh
	s.wg.Add(1)
	go s.inventoryLoop(ticker, stopCh)
	s.logger.Debug("inventory loop started", "interval", s.interval)
	return nil
}

// Stop ends inventory and waits for an in-flight round to finish. It must
// not be called from the tag handler.
func (s *Simulator) Stop(ctx context.Context) error {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return errNotConnected
	}
	s.stopLoop()
	return nil
}

func (s *Simulator) stopLoop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		s.wg.Wait()
	}
}

func (s *Simulator) inventoryLoop(ticker Ticker, stopCh <-chan struct{}) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C():
			batch, handler := s.round()
			if handler != nil && len(batch) > 0 {
				handler(batch)
			}
		}
	}
}

// round builds the batch for one inventory round from a settings snapshot.
func (s *Simulator) round() ([]rfid.RawTag, rfid.TagsReportedHandler) {
	s.mu.Lock()
	settings := s.settings.Clone()
	handler := s.handler
	channel := s.channels[s.rounds%len(s.channels)]
	s.rounds++
	s.mu.Unlock()

	report := settings.Report
	var batch []rfid.RawTag
	for _, port := range settings.EnabledPorts() {
		for _, tag := range s.tags {
			if !tag.seenBy(port) {
				continue
			}
			batch = append(batch, rfid.RawTag{
				Epc:                        append([]uint16(nil), tag.Epc...),
				AntennaPortNumber:          port,
				IsAntennaPortNumberPresent: report.IncludeAntennaPortNumber,
				ChannelInMhz:               channel,
				IsChannelInMhzPresent:      report.IncludeChannel,
				PeakRssiInDbm:              tag.PeakRssiInDbm - float64(port-1),
				IsPeakRssiInDbmPresent:     report.IncludePeakRssi,
			})
		}
	}
	return batch, handler
}

// ReadMemory reads WordCount words at WordPointer from the target tag's
// bank. A WordCount of zero reads to the end of the bank.
func (s *Simulator) ReadMemory(ctx context.Context, req rfid.ReadRequest) ([]byte, error) {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return nil, errNotConnected
	}

	target, err := rfid.EpcBytesToWords(req.TargetEpc)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	for _, tag := range s.tags {
		if !slices.Equal(tag.Epc, target) {
			continue
		}
		mem := tag.memory(req.Bank)
		start := int(req.WordPointer) * 2
		end := len(mem)
		if req.WordCount > 0 {
			end = start + int(req.WordCount)*2
		}
		if start > len(mem) || end > len(mem) {
			return nil, fmt.Errorf("simulator: read of %s bank words [%d, %d) exceeds %d words",
				req.Bank, req.WordPointer, end/2, len(mem)/2)
		}
		return append([]byte(nil), mem[start:end]...), nil
	}
	return nil, errTagNotFound
}

// Address returns the address passed to the last Connect.
func (s *Simulator) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}
