// Package protocol provides the reader message types exchanged with external
// tools over HTTP and WebSocket. It only depends on the rfid core, so clients
// can import it without pulling in server dependencies.
package protocol

import (
	"time"

	"github.com/dotside-studios/rfid-agent/rfid"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"` // RFC3339 format
}

// ReaderInfo summarizes the session and the connected reader. It is the body
// of GET /api/v1/reader, the getReaderInfo response and the readerStatus
// broadcast payload.
type ReaderInfo struct {
	Status   rfid.Status        `json:"status"`
	Features *rfid.FeatureSet   `json:"features,omitempty"`
	Dispatch rfid.DispatchStats `json:"dispatch"`
	Message  string             `json:"message,omitempty"`
}

// Error codes carried in error responses.
const (
	ErrCodeParse          = "PARSE_ERROR"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeNotConnected   = "NOT_CONNECTED"
	ErrCodeValidation     = "VALIDATION_FAILED"
	ErrCodeReader         = "READER_ERROR"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// ErrorCodeFor maps a session error to the code reported to clients.
func ErrorCodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case rfid.IsNotConnectedError(err):
		return ErrCodeNotConnected
	case rfid.IsValidationError(err):
		return ErrCodeValidation
	case rfid.GetErrorCode(err) != 0:
		return ErrCodeReader
	default:
		return ErrCodeInternalError
	}
}

// Timestamp formats t the way every payload in this package does.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
