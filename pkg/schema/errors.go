package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeExecution        = "EXECUTION_ERROR"
	ErrCodeTimeout          = "TIMEOUT_ERROR"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeUnknownService   = "UNKNOWN_SERVICE"
	ErrCodeNoCredential     = "NO_CREDENTIAL"
	ErrCodeConnector        = "CONNECTOR_ERROR"
	ErrCodeTransform        = "TRANSFORM_ERROR"
	ErrCodeUnknownFunction  = "UNKNOWN_FUNCTION"
	ErrCodeUnknownCondition = "UNKNOWN_CONDITION"
	ErrCodeUnknownBlock     = "UNKNOWN_BLOCK"
	ErrCodeDepthExceeded    = "DEPTH_EXCEEDED"
	ErrCodeStore            = "STORE_ERROR"
)

// EngineError is the structured error type for all engine operations.
type EngineError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	BlockKind string         `json:"block_kind,omitempty"`
	Cause     error          `json:"-"`
}

func (e *EngineError) Error() string {
	var msg string
	if e.BlockKind != "" {
		msg = fmt.Sprintf("[%s] %s block: %s", e.Code, e.BlockKind, e.Message)
	} else {
		msg = fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new EngineError.
func NewError(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewErrorf creates a new EngineError with a formatted message.
func NewErrorf(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithBlock attaches the kind of the block that raised the error.
func (e *EngineError) WithBlock(kind BlockKind) *EngineError {
	e.BlockKind = string(kind)
	return e
}

// WithCause attaches an underlying cause.
func (e *EngineError) WithCause(err error) *EngineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *EngineError) WithDetails(details map[string]any) *EngineError {
	e.Details = details
	return e
}
