// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"booking-scraper-service/internal/infra/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrDrainTimeout is returned by Wait when in-flight work outlives the bound.
var ErrDrainTimeout = errors.New("worker pool did not drain in time")

// Task is one iteration of a worker loop, typically "take one job and run it".
type Task func(ctx context.Context) error

// Pool runs n worker loops. Every iteration first takes a token from a
// limiter shared by all loops, so starts are capped pool-wide.
type Pool struct {
	wg      sync.WaitGroup
	limiter *rate.Limiter
	n       int
	backoff time.Duration
	log     *zerolog.Logger
}

func NewPool(workers int, limiter *rate.Limiter, log *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Pool{limiter: limiter, n: workers, backoff: time.Second, log: log}
}

// Start launches the loops. They stop taking new work once ctx is done; a
// task already running is not interrupted by ctx.
func (p *Pool) Start(ctx context.Context, task Task) {
	metrics.SetWorkerConcurrency(p.n)
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			log := p.log.With().Int("worker", id).Logger()
			log.Info().Msg("worker started")
			defer log.Info().Msg("worker stopped")

			for ctx.Err() == nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return
				}
				if err := task(ctx); err != nil {
					log.Error().Err(err).Msg("worker iteration failed")
					select {
					case <-ctx.Done():
					case <-time.After(p.backoff):
					}
				}
			}
		}(i)
	}
}

// Wait blocks until every loop has returned or timeout elapses.
func (p *Pool) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return ErrDrainTimeout
	}
}
