package protocol

import (
	"encoding/json"
	"time"

	"github.com/dotside-studios/rfid-agent/rfid"
)

// Broadcast message types
const (
	WSTypeTagReport    = "tagReport"
	WSTypeReaderStatus = "readerStatus"
	WSTypeError        = "error"
)

// Request message types
const (
	WSTypeGetReaderInfo    = "getReaderInfo"
	WSTypeGetTxPower       = "getTxPower"
	WSTypeSetTxPower       = "setTxPower"
	WSTypeGetAntennaConfig = "getAntennaConfig"
	WSTypeSetAntennaConfig = "setAntennaConfig"
	WSTypeSetMode          = "setMode"
	WSTypeSetReportFlags   = "setReportFlags"
	WSTypeStart            = "start"
	WSTypeStop             = "stop"
	WSTypeReadMemory       = "readMemory"
)

// ResponseType is the type of the response to a request of type requestType.
func ResponseType(requestType string) string {
	return requestType + "Response"
}

// WebSocketMessage is the generic message envelope for WebSocket communication.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is for incoming requests from WebSocket clients.
type WebSocketRequest struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the request payload into v. An absent payload leaves v as is.
func (r WebSocketRequest) Decode(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(r.Payload, v)
}

// WebSocketResponse is for responses to WebSocket requests.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorPayload accompanies failed responses.
type ErrorPayload struct {
	Code string `json:"code"`
}

// TagReportPayload is broadcast for every tag report. Optional fields are
// null when the reader did not include them.
type TagReportPayload struct {
	Epc               string   `json:"epc"`
	AntennaPortNumber *uint16  `json:"antennaPortNumber"`
	ChannelInMhz      *float64 `json:"channelInMhz"`
	PeakRssiInDbm     *float64 `json:"peakRssiInDbm"`
	SeenAt            string   `json:"seenAt"` // RFC3339 format
}

// NewTagReportPayload converts report, seen at t, into its wire form.
func NewTagReportPayload(report rfid.TagReport, t time.Time) TagReportPayload {
	return TagReportPayload{
		Epc:               report.EpcHex(),
		AntennaPortNumber: report.AntennaPortNumber,
		ChannelInMhz:      report.ChannelInMhz,
		PeakRssiInDbm:     report.PeakRssiInDbm,
		SeenAt:            Timestamp(t),
	}
}

// TxPowerPayload is the setTxPower request payload.
type TxPowerPayload struct {
	Dbm float64 `json:"dbm"`
}

// TxPowerResult is the getTxPower response payload, one entry per antenna.
type TxPowerResult struct {
	PowersDbm []float64 `json:"powersDbm"`
}

// AntennaConfigPayload is both the setAntennaConfig request payload and the
// getAntennaConfig response payload. Entry i enables port i+1.
type AntennaConfigPayload struct {
	Mask []bool `json:"mask"`
}

// ModePayload is the setMode request payload. Modes are given by name.
type ModePayload struct {
	ReaderMode rfid.ReaderMode `json:"readerMode"`
	SearchMode rfid.SearchMode `json:"searchMode"`
	Session    uint16          `json:"session"`
}

// ReportFlagsPayload is the setReportFlags request payload. Omitted flags are false.
type ReportFlagsPayload struct {
	IncludeAntenna bool `json:"includeAntenna"`
	IncludeChannel bool `json:"includeChannel"`
	IncludeRssi    bool `json:"includeRssi"`
}

// ReadMemoryPayload is the readMemory request payload.
type ReadMemoryPayload struct {
	Epc         string `json:"epc"`
	Bank        string `json:"bank"`
	WordPointer uint16 `json:"wordPointer"`
	WordCount   uint16 `json:"wordCount"`
}

// ReadMemoryResult is the readMemory response payload.
type ReadMemoryResult struct {
	Epc  string `json:"epc"`
	Bank string `json:"bank"`
	Data string `json:"data"` // uppercase hex
}
