package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"invalid input", fmt.Errorf("parsing n: %w", ErrInvalidInput), ExitInvalidInput},
		{"not found", ErrNotFound, ExitInvalidInput},
		{"locked", ErrLocked, ExitInvalidInput},
		{"format", New(ErrFormat, "empty document 3"), ExitFormat},
		{"inconsistent", Newf(ErrInconsistent, "total %d != %d", 1, 2), ExitInconsistent},
		{"deadline", fmt.Errorf("build: %w", context.DeadlineExceeded), ExitTimeout},
		{"io", IO("writing segment", fs.ErrPermission), ExitIO},
		{"unknown", errors.New("boom"), ExitIO},
		{"interrupted", fmt.Errorf("indexing documents: %w", context.Canceled), ExitIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestIOKeepsCause(t *testing.T) {
	err := IO("opening manifest", fs.ErrNotExist)
	if !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO in chain: %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist in chain: %v", err)
	}
	if IO("noop", nil) != nil {
		t.Error("IO(nil) should be nil")
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("segment: %w", New(ErrInvalidInput, "n must be >= 1"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if got, want := err.Error(), "segment: invalid input: n must be >= 1"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
