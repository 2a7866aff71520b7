package service

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RateLimiter caps challenge creation per subject within a sliding window.
// State is in memory only; a restart resets every subject.
type RateLimiter struct {
	clock       clock.Clock
	window      time.Duration
	maxAttempts int

	mu       sync.Mutex
	attempts map[string][]time.Time
}

// NewRateLimiter allows maxAttempts per window for each subject.
func NewRateLimiter(clk clock.Clock, window time.Duration, maxAttempts int) *RateLimiter {
	return &RateLimiter{
		clock:       clk,
		window:      window,
		maxAttempts: maxAttempts,
		attempts:    make(map[string][]time.Time),
	}
}

// Allow records an attempt for subjectID and reports whether it is within
// the limit. Denied attempts are not recorded.
func (r *RateLimiter) Allow(subjectID string) bool {
	now := r.clock.Now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	recent := r.attempts[subjectID]
	kept := recent[:0]
	for _, at := range recent {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= r.maxAttempts {
		r.attempts[subjectID] = kept
		return false
	}

	r.attempts[subjectID] = append(kept, now)
	return true
}

// Reset forgets every attempt of subjectID.
func (r *RateLimiter) Reset(subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, subjectID)
}

// Prune forgets subjects whose newest attempt has left the window and
// returns how many were dropped.
func (r *RateLimiter) Prune() int {
	cutoff := r.clock.Now().Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for subjectID, recent := range r.attempts {
		if len(recent) == 0 || !recent[len(recent)-1].After(cutoff) {
			delete(r.attempts, subjectID)
			dropped++
		}
	}
	return dropped
}

// Run prunes once per window until ctx is done.
func (r *RateLimiter) Run(ctx context.Context) {
	ticker := r.clock.Ticker(r.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Prune()
		}
	}
}

func (r *RateLimiter) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}
