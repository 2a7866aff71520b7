package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/log"
)

// ErrSchedulerRunning is returned by Start on a scheduler already started.
var ErrSchedulerRunning = errors.New("scheduler already running")

// Runner is the job the Scheduler fires. *BatchRunner implements it.
type Runner interface {
	RunAll(ctx context.Context) (*core.ReconciliationResult, error)
}

// Scheduler fires a batch run on a cron schedule. Runs started by the
// scheduler never overlap each other; Trigger runs are not coordinated with
// them.
type Scheduler struct {
	runner   Runner
	schedule cron.Schedule
	clock    clock.Clock
	logger   log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler parses spec, a standard five field cron expression or a
// descriptor such as "@every 6h".
func NewScheduler(runner Runner, spec string, clk clock.Clock, logger log.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		clock:    clk,
		logger:   logger,
	}, nil
}

// Start launches the schedule loop. It stops when ctx is done or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrSchedulerRunning
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Info("scheduler started", "next", s.schedule.Next(s.clock.Now()))
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Trigger runs a batch synchronously, outside the schedule.
func (s *Scheduler) Trigger(ctx context.Context) (*core.ReconciliationResult, error) {
	s.logger.Info("manual batch run triggered")
	return s.runner.RunAll(ctx)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		now := s.clock.Now()
		next := s.schedule.Next(now)
		timer := s.clock.Timer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		result, err := s.runner.RunAll(ctx)
		if err != nil {
			s.logger.Error("scheduled batch run failed", "err", err)
			continue
		}
		s.logger.Info("scheduled batch run done",
			"run", result.RunID,
			"processed", result.Processed,
			"failed", result.Failed)
	}
}
