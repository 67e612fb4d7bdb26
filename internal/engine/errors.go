package engine

import (
	"errors"
	"fmt"
)

// Error codes returned by the engine.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeInvalidGenerator = "invalid_generator"
	CodeValidationFailed = "validation_failed"
	CodeGenerationFailed = "generation_failed"
	CodeCleanupFailed    = "cleanup_failed"
	CodeRunInProgress    = "run_in_progress"
)

// ErrRunInProgress is wrapped by the error returned when an exclusive run
// already holds the (generator, kind) pair.
var ErrRunInProgress = errors.New("run in progress")

// Error is a typed run failure. Message is safe to show to the operator.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

func newError(code string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Code extracts the engine error code from err, or "" if err is not an
// engine error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
