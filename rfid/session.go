package rfid

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Options configures a Session.
type Options struct {
	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// PowerPolicy decides how out-of-range transmit power is handled.
	PowerPolicy PowerPolicy
}

// ReportFlags selects the optional fields the reader includes in tag reports.
type ReportFlags struct {
	AntennaPortNumber bool `json:"antennaPortNumber" yaml:"antenna_port_number"`
	Channel           bool `json:"channel" yaml:"channel"`
	PeakRssi          bool `json:"peakRssi" yaml:"peak_rssi"`
}

// Profile is a partial settings intent applied in one reconcile cycle.
// Nil fields are left as the reader has them.
type Profile struct {
	ReaderMode *ReaderMode
	SearchMode *SearchMode
	Session    *uint16
	Report     *ReportFlags
	Antennas   AntennaMask
	TxPowerDbm *float64
}

// Session is the operation surface over a single reader Driver.
//
// Settings operations are synchronous and must be serialized by the caller.
// The observer may be swapped at any time, including while tag batches are
// being delivered.
type Session struct {
	id         string
	driver     Driver
	cache      *CapabilityCache
	reconciler *Reconciler
	dispatcher *Dispatcher
	policy     PowerPolicy
	logger     *slog.Logger

	mu        sync.RWMutex
	address   string
	connected bool
	streaming bool
}

// NewSession creates a session over driver and subscribes its dispatcher to
// the driver's tag notifications.
func NewSession(driver Driver, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("component", "session", "session_id", id)

	s := &Session{
		id:         id,
		driver:     driver,
		cache:      NewCapabilityCache(),
		reconciler: NewReconciler(driver, logger),
		dispatcher: NewDispatcher(logger),
		policy:     opts.PowerPolicy,
		logger:     logger,
	}
	driver.OnTagsReported(s.dispatcher.Dispatch)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Connect opens the control connection, caches the reader's capabilities and
// applies its default settings. On any failure the driver is disconnected
// again and the session stays disconnected.
//
// Connecting a connected session first closes the current connection. If
// the new connection then fails, the session is left disconnected; it does
// not fall back to the previous reader.
func (s *Session) Connect(ctx context.Context, address string) error {
	if s.IsConnected() {
		s.logger.Info("reconnecting, dropping current connection", "address", address)
		if err := s.Disconnect(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("connecting to reader", "address", address)
	if err := s.driver.Connect(ctx, address); err != nil {
		s.logger.Error("connect failed", "address", address, "error", err)
		return NewConnectionError("Connect", err)
	}

	if err := s.initialize(ctx); err != nil {
		if derr := s.driver.Disconnect(); derr != nil {
			s.logger.Warn("disconnect after failed connect", "error", derr)
		}
		s.cache.Clear()
		return err
	}

	s.mu.Lock()
	s.address = address
	s.connected = true
	s.streaming = false
	s.mu.Unlock()

	features, _ := s.cache.Get()
	s.logger.Info("reader connected",
		"address", address,
		"model", features.ModelName,
		"antennas", features.AntennaCount)
	return nil
}

func (s *Session) initialize(ctx context.Context) error {
	if _, err := s.queryFeatureSet(ctx, "Connect"); err != nil {
		return err
	}
	return s.applyDefaults(ctx, "Connect")
}

// Disconnect stops streaming if needed and closes the control connection.
// Disconnecting a disconnected session is a no-op. If the driver fails to
// disconnect the session stays connected.
func (s *Session) Disconnect(ctx context.Context) error {
	if !s.IsConnected() {
		return nil
	}

	if s.IsStreaming() {
		if err := s.Stop(ctx); err != nil {
			s.logger.Warn("stop before disconnect failed", "error", err)
		}
	}

	if err := s.driver.Disconnect(); err != nil {
		s.logger.Error("disconnect failed", "error", err)
		return NewConnectionError("Disconnect", err)
	}

	s.mu.Lock()
	s.connected = false
	s.streaming = false
	s.mu.Unlock()
	s.cache.Clear()

	s.logger.Info("reader disconnected")
	return nil
}

// QueryFeatureSet re-queries the reader's capabilities and replaces the cache.
func (s *Session) QueryFeatureSet(ctx context.Context) (FeatureSet, error) {
	if err := s.requireConnected("QueryFeatureSet"); err != nil {
		return FeatureSet{}, err
	}
	return s.queryFeatureSet(ctx, "QueryFeatureSet")
}

func (s *Session) queryFeatureSet(ctx context.Context, op string) (FeatureSet, error) {
	features, err := s.driver.QueryFeatureSet(ctx)
	if err != nil {
		s.logger.Error("query feature set failed", "op", op, "error", err)
		return FeatureSet{}, NewConnectionError(op, err)
	}
	if err := features.Validate(); err != nil {
		s.logger.Error("reader reported unusable feature set", "op", op, "error", err)
		return FeatureSet{}, NewConnectionError(op, err)
	}
	s.cache.Set(features)
	return features, nil
}

// FeatureSet returns the cached capabilities without a driver call.
func (s *Session) FeatureSet() (FeatureSet, bool) {
	return s.cache.Get()
}

// SetDefaultSettings applies the reader's factory default settings.
func (s *Session) SetDefaultSettings(ctx context.Context) error {
	if err := s.requireConnected("SetDefaultSettings"); err != nil {
		return err
	}
	return s.applyDefaults(ctx, "SetDefaultSettings")
}

func (s *Session) applyDefaults(ctx context.Context, op string) error {
	defaults, err := fetchSettings(ctx, op, s.logger, s.driver.QueryDefaultSettings)
	if err != nil {
		return err
	}
	if err := s.driver.ApplySettings(ctx, defaults); err != nil {
		s.logger.Error("apply default settings failed", "op", op, "error", err)
		return NewSettingsApplyError(op, err)
	}
	return nil
}

// SetMode sets the reader mode, search mode and session in one cycle.
func (s *Session) SetMode(ctx context.Context, readerMode ReaderMode, searchMode SearchMode, session uint16) error {
	if err := s.requireConnected("SetMode"); err != nil {
		return err
	}
	return s.reconciler.Reconcile(ctx, "SetMode", func(settings *Settings) error {
		settings.ReaderMode = readerMode
		settings.SearchMode = searchMode
		settings.Session = session
		return nil
	})
}

// SetReportFlags selects which optional fields tag reports carry.
func (s *Session) SetReportFlags(ctx context.Context, includeAntenna, includeChannel, includeRssi bool) error {
	if err := s.requireConnected("SetReportFlags"); err != nil {
		return err
	}
	flags := ReportFlags{AntennaPortNumber: includeAntenna, Channel: includeChannel, PeakRssi: includeRssi}
	return s.reconciler.Reconcile(ctx, "SetReportFlags", func(settings *Settings) error {
		applyReportFlags(settings, flags)
		return nil
	})
}

func applyReportFlags(settings *Settings, flags ReportFlags) {
	settings.Report.IncludeAntennaPortNumber = flags.AntennaPortNumber
	settings.Report.IncludeChannel = flags.Channel
	settings.Report.IncludePeakRssi = flags.PeakRssi
}

// GetTxPower returns each antenna's transmit power in list order.
func (s *Session) GetTxPower(ctx context.Context) ([]float64, error) {
	if err := s.requireConnected("GetTxPower"); err != nil {
		return nil, err
	}
	settings, err := s.reconciler.querySettings(ctx, "GetTxPower")
	if err != nil {
		return nil, err
	}
	return txPowers(settings), nil
}

// SetTxPower applies dbm to every antenna. The reader has the final say on
// the value; see PowerPolicy for the local check.
func (s *Session) SetTxPower(ctx context.Context, dbm float64) error {
	if err := s.requireConnected("SetTxPower"); err != nil {
		return err
	}
	features, known := s.cache.Get()
	if err := checkTxPower(s.policy, features, known, dbm, s.logger); err != nil {
		return err
	}
	return s.reconciler.Reconcile(ctx, "SetTxPower", func(settings *Settings) error {
		setUniformTxPower(settings, dbm)
		return nil
	})
}

// GetAntennaConfig returns the enable mask of the reader's antennas.
func (s *Session) GetAntennaConfig(ctx context.Context) (AntennaMask, error) {
	if err := s.requireConnected("GetAntennaConfig"); err != nil {
		return nil, err
	}
	features, ok := s.cache.Get()
	if !ok {
		return nil, NewNotConnectedError("GetAntennaConfig")
	}
	settings, err := s.reconciler.querySettings(ctx, "GetAntennaConfig")
	if err != nil {
		return nil, err
	}
	return MaskFromEnabled(features.AntennaCount, settings.EnabledPorts()), nil
}

// SetAntennaConfig replaces the antenna list according to mask. The mask is
// checked before any driver call.
func (s *Session) SetAntennaConfig(ctx context.Context, mask AntennaMask) error {
	if err := s.requireConnected("SetAntennaConfig"); err != nil {
		return err
	}
	features, ok := s.cache.Get()
	if !ok {
		return NewNotConnectedError("SetAntennaConfig")
	}
	if err := validateMask("SetAntennaConfig", mask, features.AntennaCount); err != nil {
		return err
	}
	return s.reconciler.Reconcile(ctx, "SetAntennaConfig", func(settings *Settings) error {
		configs, err := BuildAntennaConfigs(mask, settings.Antennas)
		if err != nil {
			return err
		}
		settings.Antennas = configs
		return nil
	})
}

// ApplyProfile applies every set field of p in a single reconcile cycle.
// Antennas are rebuilt before power is written, so both can be set together.
func (s *Session) ApplyProfile(ctx context.Context, p Profile) error {
	if err := s.requireConnected("ApplyProfile"); err != nil {
		return err
	}
	features, known := s.cache.Get()
	if p.Antennas != nil {
		if !known {
			return NewNotConnectedError("ApplyProfile")
		}
		if err := validateMask("ApplyProfile", p.Antennas, features.AntennaCount); err != nil {
			return err
		}
	}
	if p.TxPowerDbm != nil {
		if err := checkTxPower(s.policy, features, known, *p.TxPowerDbm, s.logger); err != nil {
			return err
		}
	}

	return s.reconciler.Reconcile(ctx, "ApplyProfile", func(settings *Settings) error {
		if p.ReaderMode != nil {
			settings.ReaderMode = *p.ReaderMode
		}
		if p.SearchMode != nil {
			settings.SearchMode = *p.SearchMode
		}
		if p.Session != nil {
			settings.Session = *p.Session
		}
		if p.Report != nil {
			applyReportFlags(settings, *p.Report)
		}
		if p.Antennas != nil {
			configs, err := BuildAntennaConfigs(p.Antennas, settings.Antennas)
			if err != nil {
				return err
			}
			settings.Antennas = configs
		}
		if p.TxPowerDbm != nil {
			setUniformTxPower(settings, *p.TxPowerDbm)
		}
		return nil
	})
}

// SetObserver registers the single tag observer, replacing any previous one.
// Passing nil unregisters it; reports are then dropped.
func (s *Session) SetObserver(observer Observer) {
	s.dispatcher.SetObserver(observer)
}

// SetDispatchErrorHandler registers fn to receive observer failures.
func (s *Session) SetDispatchErrorHandler(fn func(error)) {
	s.dispatcher.SetErrorHandler(fn)
}

// DispatchStats returns the dispatcher counters.
func (s *Session) DispatchStats() DispatchStats {
	return s.dispatcher.Stats()
}

// Start begins inventory. Starting a streaming session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	if err := s.requireConnected("Start"); err != nil {
		return err
	}
	if s.IsStreaming() {
		return nil
	}
	if err := s.driver.Start(ctx); err != nil {
		s.logger.Error("start failed", "error", err)
		return NewConnectionError("Start", err)
	}
	s.setStreaming(true)
	s.logger.Info("inventory started")
	return nil
}

// Stop ends inventory. A callback already running is not interrupted.
// Stopping an idle session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	if !s.IsStreaming() {
		return nil
	}
	if err := s.driver.Stop(ctx); err != nil {
		s.logger.Error("stop failed", "error", err)
		return NewConnectionError("Stop", err)
	}
	s.setStreaming(false)
	s.logger.Info("inventory stopped")
	return nil
}

// Read performs a targeted memory read on the tag with EPC epcTarget.
func (s *Session) Read(ctx context.Context, epcTarget []byte, bank MemoryBank, wordPointer, wordCount uint16) ([]byte, error) {
	if err := s.requireConnected("Read"); err != nil {
		return nil, err
	}
	data, err := s.driver.ReadMemory(ctx, ReadRequest{
		TargetEpc:   epcTarget,
		Bank:        bank,
		WordPointer: wordPointer,
		WordCount:   wordCount,
	})
	if err != nil {
		s.logger.Error("memory read failed",
			"epc", FormatEpc(epcTarget),
			"bank", bank.String(),
			"error", err)
		return nil, NewConnectionError("Read", err)
	}
	return data, nil
}

// Status returns a snapshot of the session state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		SessionID: s.id,
		Address:   s.address,
		Connected: s.connected,
		Streaming: s.streaming,
		Observer:  s.dispatcher.HasObserver(),
	}
}

// IsConnected reports whether the control connection is open.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// IsStreaming reports whether inventory is running.
func (s *Session) IsStreaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

func (s *Session) setStreaming(v bool) {
	s.mu.Lock()
	s.streaming = v
	s.mu.Unlock()
}

func (s *Session) requireConnected(op string) error {
	if !s.IsConnected() {
		return NewNotConnectedError(op)
	}
	return nil
}
