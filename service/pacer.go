package service

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Pacer spaces out consecutive batches of upstream calls.
type Pacer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// ClockPacer waits on a clock timer, so a mock clock drives it in tests.
type ClockPacer struct {
	Clock clock.Clock
}

func (p ClockPacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := p.Clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
