package rfid

import (
	"context"
	"fmt"
	"sync"
)

// MockDriver is a test implementation of Driver that keeps reader state in memory.
//
// MockDriver records every call in CallLog, stores applied settings so that a
// following QuerySettings returns them, and lets tests inject errors per
// method. Tag batches are pushed with Emit.
//
// Example:
//
//	mock := NewMockDriver(2)
//	mock.ApplyError = errors.New("rejected")
//	session := NewSession(mock, Options{})
type MockDriver struct {
	// Features is returned by QueryFeatureSet.
	Features FeatureSet

	// Defaults is returned (cloned) by QueryDefaultSettings.
	Defaults *Settings

	// Current holds the settings last applied, returned (cloned) by QuerySettings.
	Current *Settings

	// Applied records every settings object passed to ApplySettings.
	Applied []*Settings

	// Memory is returned by ReadMemory when ReadFunc is nil.
	Memory []byte

	// ReadFunc allows custom ReadMemory behavior for testing.
	ReadFunc func(ReadRequest) ([]byte, error)

	// Per-method injected errors.
	ConnectError         error
	DisconnectError      error
	FeatureSetError      error
	DefaultSettingsError error
	QueryError           error
	ApplyError           error
	StartError           error
	StopError            error
	ReadError            error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	connected bool
	started   bool
	address   string
	handler   TagsReportedHandler
	mu        sync.Mutex
}

// NewMockDriver creates a MockDriver for a reader with antennaCount ports,
// all enabled at 30 dBm.
func NewMockDriver(antennaCount int) *MockDriver {
	defaults := &Settings{
		ReaderMode: ReaderModeMaxThroughput,
		SearchMode: SearchModeDualTarget,
		Session:    1,
	}
	for i := 0; i < antennaCount; i++ {
		port := uint16(i + 1)
		defaults.Antennas = append(defaults.Antennas, AntennaConfig{
			PortNumber:       port,
			PortName:         PortName(port),
			IsEnabled:        true,
			TxPowerInDbm:     30,
			MaxRxSensitivity: true,
		})
	}
	return &MockDriver{
		Features: FeatureSet{
			ModelName:       "Mock Reader",
			Region:          "FCC",
			FirmwareVersion: "0.0.0",
			AntennaCount:    antennaCount,
			MinTxPowerDbm:   10,
			MaxTxPowerDbm:   31.5,
		},
		Defaults: defaults,
		Current:  defaults.Clone(),
		CallLog:  make([]string, 0),
	}
}

func (m *MockDriver) record(call string) {
	m.CallLog = append(m.CallLog, call)
}

// Connect simulates opening the control connection.
func (m *MockDriver) Connect(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Connect")
	if m.ConnectError != nil {
		return m.ConnectError
	}
	m.connected = true
	m.address = address
	return nil
}

// Disconnect simulates closing the control connection.
func (m *MockDriver) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Disconnect")
	if m.DisconnectError != nil {
		return m.DisconnectError
	}
	m.connected = false
	m.started = false
	return nil
}

// QueryFeatureSet returns Features.
func (m *MockDriver) QueryFeatureSet(ctx context.Context) (FeatureSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("QueryFeatureSet")
	if m.FeatureSetError != nil {
		return FeatureSet{}, m.FeatureSetError
	}
	return m.Features, nil
}

// QueryDefaultSettings returns a copy of Defaults.
func (m *MockDriver) QueryDefaultSettings(ctx context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("QueryDefaultSettings")
	if m.DefaultSettingsError != nil {
		return nil, m.DefaultSettingsError
	}
	return m.Defaults.Clone(), nil
}

// QuerySettings returns a copy of Current.
func (m *MockDriver) QuerySettings(ctx context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("QuerySettings")
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	return m.Current.Clone(), nil
}

// ApplySettings stores settings as Current unless ApplyError is set.
func (m *MockDriver) ApplySettings(ctx context.Context, settings *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("ApplySettings")
	m.Applied = append(m.Applied, settings.Clone())
	if m.ApplyError != nil {
		return m.ApplyError
	}
	m.Current = settings.Clone()
	return nil
}

// Start simulates starting inventory.
func (m *MockDriver) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Start")
	if m.StartError != nil {
		return m.StartError
	}
	if !m.connected {
		return fmt.Errorf("mock driver not connected")
	}
	m.started = true
	return nil
}

// Stop simulates stopping inventory.
func (m *MockDriver) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Stop")
	if m.StopError != nil {
		return m.StopError
	}
	m.started = false
	return nil
}

// OnTagsReported registers the batch handler used by Emit.
func (m *MockDriver) OnTagsReported(handler TagsReportedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handler = handler
}

// ReadMemory returns Memory, or the result of ReadFunc when set.
func (m *MockDriver) ReadMemory(ctx context.Context, req ReadRequest) ([]byte, error) {
	m.mu.Lock()
	m.record("ReadMemory")
	fn := m.ReadFunc
	data, err := m.Memory, m.ReadError
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// Emit delivers batch to the registered handler on the calling goroutine,
// the way a driver's notification goroutine would.
func (m *MockDriver) Emit(batch []RawTag) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		handler(batch)
	}
}

// IsStarted reports whether inventory is running.
func (m *MockDriver) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// GetCallLog returns a copy of the call log.
func (m *MockDriver) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := make([]string, len(m.CallLog))
	copy(log, m.CallLog)
	return log
}

// ClearCallLog clears the call log and the list of applied settings.
func (m *MockDriver) ClearCallLog() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = make([]string, 0)
	m.Applied = nil
}
