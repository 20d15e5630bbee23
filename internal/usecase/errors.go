package usecase

import "fmt"

type ErrorCode string

const (
	// ErrorEndpoint covers failed model-endpoint exchanges: network faults,
	// auth failures, malformed responses.
	ErrorEndpoint ErrorCode = "ENDPOINT_ERROR"
	// ErrorPrecondition covers invalid run inputs: empty prompt set,
	// insufficient templates, malformed dataset or configuration.
	ErrorPrecondition ErrorCode = "PRECONDITION_FAILED"
	// ErrorInternal covers persistence and wiring faults.
	ErrorInternal ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
