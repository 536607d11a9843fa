package rfid

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of reader error for programmatic handling.
type ErrorCode int

// Session and driver errors (100-199)
const (
	ErrCodeConnection ErrorCode = iota + 100
	ErrCodeNotConnected
	ErrCodeSettingsApply
)

// Local validation errors (200-299)
const (
	ErrCodeNoAntennaEnabled ErrorCode = iota + 200
	ErrCodeInvalidMask
	ErrCodePowerOutOfRange
)

// Event delivery errors (300-399)
const (
	ErrCodeDispatch ErrorCode = iota + 300
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeConnection:
		return "CONNECTION"
	case ErrCodeNotConnected:
		return "NOT_CONNECTED"
	case ErrCodeSettingsApply:
		return "SETTINGS_APPLY"
	case ErrCodeNoAntennaEnabled:
		return "NO_ANTENNA_ENABLED"
	case ErrCodeInvalidMask:
		return "INVALID_MASK"
	case ErrCodePowerOutOfRange:
		return "POWER_OUT_OF_RANGE"
	case ErrCodeDispatch:
		return "DISPATCH"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// ReaderError provides structured error information for programmatic handling.
type ReaderError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "SetTxPower", "Connect")
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *ReaderError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ReaderError) Unwrap() error {
	return e.Cause
}

func (e *ReaderError) Is(target error) bool {
	if t, ok := target.(*ReaderError); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons. Only the Code is compared.
var (
	ErrConnection       = &ReaderError{Code: ErrCodeConnection, Message: "connection error"}
	ErrNotConnected     = &ReaderError{Code: ErrCodeNotConnected, Message: "reader not connected"}
	ErrSettingsApply    = &ReaderError{Code: ErrCodeSettingsApply, Message: "settings rejected"}
	ErrNoAntennaEnabled = &ReaderError{Code: ErrCodeNoAntennaEnabled, Message: "at least one antenna has to be enabled"}
	ErrInvalidMask      = &ReaderError{Code: ErrCodeInvalidMask, Message: "invalid antenna mask"}
	ErrPowerOutOfRange  = &ReaderError{Code: ErrCodePowerOutOfRange, Message: "tx power out of range"}
	ErrDispatch         = &ReaderError{Code: ErrCodeDispatch, Message: "observer failed"}
)

// NewConnectionError creates an error for a failed driver call.
func NewConnectionError(op string, cause error) *ReaderError {
	return &ReaderError{
		Code:    ErrCodeConnection,
		Op:      op,
		Message: "driver call failed",
		Cause:   cause,
	}
}

// NewNotConnectedError creates an error for operations issued without a connection.
func NewNotConnectedError(op string) *ReaderError {
	return &ReaderError{
		Code:    ErrCodeNotConnected,
		Op:      op,
		Message: "reader not connected",
	}
}

// NewSettingsApplyError creates an error for settings the driver refused.
func NewSettingsApplyError(op string, cause error) *ReaderError {
	return &ReaderError{
		Code:    ErrCodeSettingsApply,
		Op:      op,
		Message: "reader rejected settings",
		Cause:   cause,
	}
}

// NewNoAntennaEnabledError creates an error for an all-false antenna mask.
func NewNoAntennaEnabledError(op string) *ReaderError {
	return &ReaderError{
		Code:    ErrCodeNoAntennaEnabled,
		Op:      op,
		Message: "at least one antenna has to be enabled",
	}
}

// NewDispatchError wraps a failure raised by the observer.
func NewDispatchError(epc []byte, cause error) *ReaderError {
	return &ReaderError{
		Code:    ErrCodeDispatch,
		Op:      "Dispatch",
		Message: fmt.Sprintf("observer failed for tag %s", FormatEpc(epc)),
		Cause:   cause,
	}
}

// Errorf creates a ReaderError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...any) *ReaderError {
	return &ReaderError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// GetErrorCode extracts the ErrorCode from an error if it's a ReaderError.
// Returns 0 if the error is not a ReaderError.
func GetErrorCode(err error) ErrorCode {
	var readerErr *ReaderError
	if errors.As(err, &readerErr) {
		return readerErr.Code
	}
	return 0
}

// IsConnectionError checks if an error came from a failed driver call.
func IsConnectionError(err error) bool {
	return GetErrorCode(err) == ErrCodeConnection
}

// IsNotConnectedError checks if an error indicates a missing connection.
func IsNotConnectedError(err error) bool {
	return GetErrorCode(err) == ErrCodeNotConnected
}

// IsValidationError checks if an error was raised locally, before any driver call.
func IsValidationError(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeNoAntennaEnabled, ErrCodeInvalidMask, ErrCodePowerOutOfRange:
		return true
	}
	return false
}
