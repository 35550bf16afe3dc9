package scheduler

import (
	"context"
	"time"

	"booking-scraper-service/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Task is one periodic run. Its ctx carries a deadline of one interval.
type Task func(ctx context.Context) error

// Scheduler runs a Task every interval until stopped.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task
	log      *zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler defaults interval to 1 minute when it is not positive.
func NewScheduler(name string, interval time.Duration, task Task, log *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
		log:      logging.Component(log, "scheduler"),
	}
}

// Start runs the task once immediately, then on every tick. Calling Start
// on a running scheduler has no effect.
func (s *Scheduler) Start(parent context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Debug().Str("task", s.name).Dur("interval", s.interval).Msg("scheduler started")
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	if err := s.task(runCtx); err != nil && ctx.Err() == nil {
		s.log.Warn().Err(err).Str("task", s.name).Msg("scheduled task failed")
	}
}

// Stop cancels the loop and waits for it to return. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}
