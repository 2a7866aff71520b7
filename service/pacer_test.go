package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockPacerWaitsForClock(t *testing.T) {
	mock := newMockClock()
	pacer := ClockPacer{Clock: mock}

	done := make(chan error, 1)
	go func() { done <- pacer.Wait(context.Background(), 2*time.Second) }()

	require.Eventually(t, func() bool {
		mock.Add(500 * time.Millisecond)
		select {
		case err := <-done:
			assert.NoError(t, err)
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestClockPacerCancelled(t *testing.T) {
	pacer := ClockPacer{Clock: newMockClock()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pacer.Wait(ctx, time.Hour), context.Canceled)
}

func TestClockPacerZeroDelay(t *testing.T) {
	pacer := ClockPacer{Clock: newMockClock()}
	assert.NoError(t, pacer.Wait(context.Background(), 0))
}
