package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
)

func TestWithTimeoutPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	err := WithTimeout(context.Background(), time.Second, "op", func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if err := WithTimeout(context.Background(), 0, "op", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("zero timeout: %v", err)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	released := false
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		released = true
		return ctx.Err()
	})
	if !errors.Is(err, apperrors.ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if !released {
		t.Error("fn should have finished before WithTimeout returned")
	}
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, "op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
