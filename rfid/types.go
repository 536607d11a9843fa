package rfid

import (
	"fmt"
	"maps"
	"strings"
)

// ReaderMode selects the RF link profile of the reader, trading read rate
// against robustness in dense environments.
type ReaderMode int

const (
	ReaderModeMaxThroughput ReaderMode = iota
	ReaderModeHybrid
	ReaderModeDenseReaderM4
	ReaderModeDenseReaderM8
	ReaderModeMaxMiller
	ReaderModeDenseReaderM4Two
)

var readerModeNames = map[ReaderMode]string{
	ReaderModeMaxThroughput:    "MaxThroughput",
	ReaderModeHybrid:           "Hybrid",
	ReaderModeDenseReaderM4:    "DenseReaderM4",
	ReaderModeDenseReaderM8:    "DenseReaderM8",
	ReaderModeMaxMiller:        "MaxMiller",
	ReaderModeDenseReaderM4Two: "DenseReaderM4Two",
}

func (m ReaderMode) String() string {
	if name, ok := readerModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ReaderMode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m ReaderMode) MarshalText() ([]byte, error) {
	if _, ok := readerModeNames[m]; !ok {
		return nil, fmt.Errorf("unknown reader mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ReaderMode) UnmarshalText(text []byte) error {
	parsed, err := ParseReaderMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseReaderMode parses a reader mode name, case-insensitively.
func ParseReaderMode(s string) (ReaderMode, error) {
	for mode, name := range readerModeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown reader mode %q", s)
}

// SearchMode controls how the reader singulates tags across inventory rounds.
type SearchMode int

const (
	SearchModeReaderSelected       SearchMode = 0
	SearchModeSingleTarget         SearchMode = 1
	SearchModeDualTarget           SearchMode = 2
	SearchModeTagFocus             SearchMode = 3
	SearchModeSingleTargetReset    SearchMode = 5
	SearchModeDualTargetBtoASelect SearchMode = 6
)

var searchModeNames = map[SearchMode]string{
	SearchModeReaderSelected:       "ReaderSelected",
	SearchModeSingleTarget:         "SingleTarget",
	SearchModeDualTarget:           "DualTarget",
	SearchModeTagFocus:             "TagFocus",
	SearchModeSingleTargetReset:    "SingleTargetReset",
	SearchModeDualTargetBtoASelect: "DualTargetBtoASelect",
}

func (m SearchMode) String() string {
	if name, ok := searchModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("SearchMode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m SearchMode) MarshalText() ([]byte, error) {
	if _, ok := searchModeNames[m]; !ok {
		return nil, fmt.Errorf("unknown search mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SearchMode) UnmarshalText(text []byte) error {
	parsed, err := ParseSearchMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseSearchMode parses a search mode name, case-insensitively.
func ParseSearchMode(s string) (SearchMode, error) {
	for mode, name := range searchModeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown search mode %q", s)
}

// MemoryBank identifies a Gen2 tag memory bank.
type MemoryBank int

const (
	MemoryBankReserved MemoryBank = iota
	MemoryBankEpc
	MemoryBankTid
	MemoryBankUser
)

var memoryBankNames = map[MemoryBank]string{
	MemoryBankReserved: "Reserved",
	MemoryBankEpc:      "Epc",
	MemoryBankTid:      "Tid",
	MemoryBankUser:     "User",
}

func (b MemoryBank) String() string {
	if name, ok := memoryBankNames[b]; ok {
		return name
	}
	return fmt.Sprintf("MemoryBank(%d)", int(b))
}

// ParseMemoryBank parses a memory bank name, case-insensitively.
func ParseMemoryBank(s string) (MemoryBank, error) {
	for bank, name := range memoryBankNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return bank, nil
		}
	}
	return 0, fmt.Errorf("unknown memory bank %q", s)
}

// FeatureSet is the capability snapshot reported by a connected reader.
// It is replaced as a whole on every query and never mutated in place.
type FeatureSet struct {
	ModelName       string  `json:"modelName"`
	Region          string  `json:"region"`
	FirmwareVersion string  `json:"firmwareVersion"`
	AntennaCount    int     `json:"antennaCount"`
	MinTxPowerDbm   float64 `json:"minTxPowerDbm"`
	MaxTxPowerDbm   float64 `json:"maxTxPowerDbm"`
}

// Validate checks the invariants a usable feature set must hold.
func (f FeatureSet) Validate() error {
	if f.AntennaCount < 1 {
		return fmt.Errorf("antenna count must be at least 1, got %d", f.AntennaCount)
	}
	if f.MinTxPowerDbm > f.MaxTxPowerDbm {
		return fmt.Errorf("min tx power %.2f dBm exceeds max %.2f dBm", f.MinTxPowerDbm, f.MaxTxPowerDbm)
	}
	return nil
}

// PowerInRange reports whether dbm lies within the reader's transmit range.
func (f FeatureSet) PowerInRange(dbm float64) bool {
	return dbm >= f.MinTxPowerDbm && dbm <= f.MaxTxPowerDbm
}

// AntennaConfig is the per-port configuration carried in Settings.
type AntennaConfig struct {
	PortNumber         uint16  `json:"portNumber"`
	PortName           string  `json:"portName"`
	IsEnabled          bool    `json:"isEnabled"`
	TxPowerInDbm       float64 `json:"txPowerInDbm"`
	RxSensitivityInDbm float64 `json:"rxSensitivityInDbm"`
	MaxRxSensitivity   bool    `json:"maxRxSensitivity"`
	MaxTxPower         bool    `json:"maxTxPower"`
}

// ReportConfig selects which optional fields the reader fills in tag reports.
type ReportConfig struct {
	IncludeAntennaPortNumber bool `json:"includeAntennaPortNumber"`
	IncludeChannel           bool `json:"includeChannel"`
	IncludePeakRssi          bool `json:"includePeakRssi"`
	IncludeFirstSeenTime     bool `json:"includeFirstSeenTime"`
	IncludeLastSeenTime      bool `json:"includeLastSeenTime"`
	IncludeSeenCount         bool `json:"includeSeenCount"`
	IncludeFastId            bool `json:"includeFastId"`
}

// Settings is the reader's full operational configuration. It is owned by
// the Driver; callers only ever modify a Clone.
type Settings struct {
	ReaderMode              ReaderMode        `json:"readerMode"`
	SearchMode              SearchMode        `json:"searchMode"`
	Session                 uint16            `json:"session"`
	TagPopulationEstimate   uint16            `json:"tagPopulationEstimate"`
	HoldReportsOnDisconnect bool              `json:"holdReportsOnDisconnect"`
	Report                  ReportConfig      `json:"report"`
	Antennas                []AntennaConfig   `json:"antennas"`
	Vendor                  map[string]string `json:"vendor,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := *s
	if s.Antennas != nil {
		out.Antennas = make([]AntennaConfig, len(s.Antennas))
		copy(out.Antennas, s.Antennas)
	}
	if s.Vendor != nil {
		out.Vendor = maps.Clone(s.Vendor)
	}
	return &out
}

// EnabledPorts returns the port numbers of every enabled antenna, in list order.
func (s *Settings) EnabledPorts() []uint16 {
	ports := make([]uint16, 0, len(s.Antennas))
	for _, a := range s.Antennas {
		if a.IsEnabled {
			ports = append(ports, a.PortNumber)
		}
	}
	return ports
}

// RawTag is one tag record as the driver delivers it. Optional fields are
// only meaningful when their presence flag is set.
type RawTag struct {
	Epc                        []uint16 `json:"epc"`
	AntennaPortNumber          uint16   `json:"antennaPortNumber,omitempty"`
	IsAntennaPortNumberPresent bool     `json:"isAntennaPortNumberPresent,omitempty"`
	ChannelInMhz               float64  `json:"channelInMhz,omitempty"`
	IsChannelInMhzPresent      bool     `json:"isChannelInMhzPresent,omitempty"`
	PeakRssiInDbm              float64  `json:"peakRssiInDbm,omitempty"`
	IsPeakRssiInDbmPresent     bool     `json:"isPeakRssiInDbmPresent,omitempty"`
}

// TagReport is the normalized tag event handed to the Observer. A nil
// optional field means the reader did not report it.
type TagReport struct {
	Epc               []byte   `json:"Epc"`
	AntennaPortNumber *uint16  `json:"AntennaPortNumber"`
	ChannelInMhz      *float64 `json:"ChannelInMhz"`
	PeakRssiInDbm     *float64 `json:"PeakRssiInDbm"`
}

// EpcHex returns the EPC as uppercase hex.
func (r TagReport) EpcHex() string {
	return FormatEpc(r.Epc)
}

// ReadRequest describes a targeted tag memory read.
type ReadRequest struct {
	TargetEpc   []byte     `json:"targetEpc"`
	Bank        MemoryBank `json:"bank"`
	WordPointer uint16     `json:"wordPointer"`
	WordCount   uint16     `json:"wordCount"`
}

// Status is a point-in-time view of a Session.
type Status struct {
	SessionID string `json:"sessionId"`
	Address   string `json:"address,omitempty"`
	Connected bool   `json:"connected"`
	Streaming bool   `json:"streaming"`
	Observer  bool   `json:"observer"`
}
