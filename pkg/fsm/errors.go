package fsm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies machine errors.
type ErrorCode int

const (
	ErrorCodeNotRegistered ErrorCode = iota
	ErrorCodeInvalidTransition
	ErrorCodeGuardFailed
	ErrorCodeCallbackFailed
	ErrorCodeConcurrentModification
	ErrorCodeMissingParameter
	ErrorCodeInvalidArgument
	ErrorCodeContextHydration
	ErrorCodeLogic
	ErrorCodeInvalidDefinition
)

// String returns the stable name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeNotRegistered:
		return "not_registered"
	case ErrorCodeInvalidTransition:
		return "invalid_transition"
	case ErrorCodeGuardFailed:
		return "guard_failed"
	case ErrorCodeCallbackFailed:
		return "callback_failed"
	case ErrorCodeConcurrentModification:
		return "concurrent_modification"
	case ErrorCodeMissingParameter:
		return "missing_parameter"
	case ErrorCodeInvalidArgument:
		return "invalid_argument"
	case ErrorCodeContextHydration:
		return "context_hydration"
	case ErrorCodeLogic:
		return "logic"
	case ErrorCodeInvalidDefinition:
		return "invalid_definition"
	default:
		return "unknown"
	}
}

// Error is the structured error type of the FSM runtime. It carries
// the transition context needed to act on a failure without parsing
// message text.
type Error struct {
	Code       ErrorCode
	Message    string
	ModelClass string
	Column     string
	From       *State
	To         State
	Phase      string
	Timestamp  time.Time
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.ModelClass != "" && e.Column != "" {
		msg = fmt.Sprintf("%s (%s.%s", msg, e.ModelClass, e.Column)
		if e.From != nil || e.To != "" {
			from := "null"
			if e.From != nil {
				from = string(*e.From)
			}
			msg = fmt.Sprintf("%s: %s -> %s", msg, from, e.To)
		}
		msg += ")"
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether retrying the same call can succeed.
func (e *Error) Retryable() bool {
	return e.Code == ErrorCodeConcurrentModification
}

// NewError creates an Error with the current timestamp.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Timestamp: time.Now()}
}

// CodeOf extracts the ErrorCode from err when it wraps an *Error.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
