// Package resilience bounds blocking file I/O with a caller-supplied timeout.
// Failures propagate immediately; nothing here retries.
package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
)

// WithTimeout runs fn with a derived context that is cancelled after the
// given timeout. If fn does not complete in time, an error wrapping both
// apperrors.ErrTimeout and context.DeadlineExceeded is returned. fn must
// watch ctx and release its resources when it is cancelled, since the
// goroutine running it is not abandoned until fn returns.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			<-done
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		// Wait for fn so that file handles and locks are released before the
		// caller sees the error.
		<-done
		return fmt.Errorf("%s: %w: %w (limit: %v)", name, apperrors.ErrTimeout, context.DeadlineExceeded, timeout)
	}
}
