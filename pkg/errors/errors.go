// Package errors defines the error taxonomy shared by the indexing pipeline,
// the histogram builder and the segmentation engine, and maps it onto
// process exit codes for the command-line tools.
package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrIO           = errors.New("i/o error")
	ErrFormat       = errors.New("format error")
	ErrInconsistent = errors.New("internal consistency fault")
	ErrLocked       = errors.New("index location is locked by another writer")
	ErrIncomplete   = errors.New("index is incomplete")
	ErrTimeout      = errors.New("operation timed out")
)

// Exit codes returned by the command-line tools.
const (
	ExitOK           = 0
	ExitInvalidInput = 1
	ExitIO           = 2
	ExitFormat       = 3
	ExitInconsistent = 4
	ExitTimeout      = 5
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCodeFor(sentinel),
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCodeFor(sentinel),
	}
}

// IO wraps err as an I/O failure while keeping err in the chain, so both
// errors.Is(result, ErrIO) and errors.Is(result, fs.ErrNotExist) hold.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrLocked), errors.Is(err, ErrIncomplete):
		return ExitInvalidInput
	case errors.Is(err, ErrFormat):
		return ExitFormat
	case errors.Is(err, ErrInconsistent):
		return ExitInconsistent
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	default:
		return ExitIO
	}
}
