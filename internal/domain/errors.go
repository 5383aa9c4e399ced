package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable failure code surfaced in responses.
type ErrorCode string

const (
	EInvalidPreference ErrorCode = "invalid_preference" // fix the request; never retried
	EDataError         ErrorCode = "data_error"         // collaborator unavailable; try again later
	EQuotaExceeded     ErrorCode = "quota_exceeded"
	ENoMatches         ErrorCode = "no_matches"
	EUnknown           ErrorCode = "unknown_error"
)

// Error is a typed failure carrying the operation that produced it.
type Error struct {
	Code    ErrorCode
	Op      string // e.g. "recommend.load_catalog"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Invalid returns a validation error.
func Invalid(op, format string, args ...any) *Error {
	return &Error{Code: EInvalidPreference, Op: op, Message: fmt.Sprintf(format, args...)}
}

// DataError wraps a collaborator failure.
func DataError(err error, op, message string) *Error {
	return &Error{Code: EDataError, Op: op, Message: message, Err: err}
}

// ErrorCodeOf returns the code of the first *Error in err's chain,
// or EUnknown for any other non-nil error.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EUnknown
}

// ErrorMessage returns a message safe to show callers. Unknown errors get a
// generic message so internal details stay in the logs.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != EUnknown {
		return e.Message
	}
	return "an unexpected error occurred while generating recommendations"
}
