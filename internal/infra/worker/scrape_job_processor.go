package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
	"booking-scraper-service/internal/domain/ports/repository"
	"booking-scraper-service/internal/infra/logging"
	"booking-scraper-service/internal/infra/metrics"

	"github.com/rs/zerolog"
)

type ProcessorConfig struct {
	CacheTTL     time.Duration
	JobTimeout   time.Duration
	DequeueBlock time.Duration
	Dev          bool
}

// ScrapeJobProcessor takes jobs off the queue and runs each exactly once.
// Every failure is terminal: the job is nacked with the error text and
// never retried.
type ScrapeJobProcessor struct {
	queue      repository.JobQueue
	cache      repository.ResultCache
	strategies adapter.StrategyResolver
	proxies    adapter.ProxyAllocator
	browsers   adapter.BrowserPool
	cfg        ProcessorConfig
	log        *zerolog.Logger
}

func NewScrapeJobProcessor(
	queue repository.JobQueue,
	cache repository.ResultCache,
	strategies adapter.StrategyResolver,
	proxies adapter.ProxyAllocator,
	browsers adapter.BrowserPool,
	cfg ProcessorConfig,
	log *zerolog.Logger,
) *ScrapeJobProcessor {
	if cfg.DequeueBlock <= 0 {
		cfg.DequeueBlock = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 3 * time.Minute
	}
	return &ScrapeJobProcessor{
		queue:      queue,
		cache:      cache,
		strategies: strategies,
		proxies:    proxies,
		browsers:   browsers,
		cfg:        cfg,
		log:        logging.Component(log, "worker"),
	}
}

// Start runs the processor on every loop of pool.
func (p *ScrapeJobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Msg("scrape job processor started")
	pool.Start(ctx, p.processOne)
}

func (p *ScrapeJobProcessor) processOne(ctx context.Context) error {
	job, err := p.queue.Dequeue(ctx, p.cfg.DequeueBlock)
	if errors.Is(err, domain.ErrQueueEmpty) {
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dequeue: %w", err)
	}

	// Once dequeued the job runs to its own deadline, shutdown or not.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.JobTimeout)
	defer cancel()
	jobCtx = logging.WithJobID(jobCtx, job.ID)
	jobCtx = logging.WithProvider(jobCtx, string(job.Request.Provider))
	log := logging.With(jobCtx, p.log)

	log.Info().
		Str("locator", logging.Redact(job.Request.Locator, p.cfg.Dev)).
		Str("last_name", logging.Redact(job.Request.LastName, p.cfg.Dev)).
		Str("origin", job.Request.Origin).
		Msg("processing job")
	start := time.Now()

	rec, err := p.run(jobCtx, job)
	if err == nil {
		err = p.cache.Set(jobCtx, job.Request.Provider, job.Request.Locator, job.Request.LastName, rec, p.cfg.CacheTTL)
		if err != nil {
			err = fmt.Errorf("store result: %w", err)
		}
	}
	took := time.Since(start)

	// Terminal bookkeeping gets a fresh deadline; the job ctx may be spent.
	finCtx, finCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer finCancel()

	provider := string(job.Request.Provider)
	if err != nil {
		kind := domain.Kind(err)
		metrics.ObserveJob(provider, string(model.JobStateFailed), kind, took)
		log.Error().Err(err).Str("kind", kind).Dur("duration", took).Msg("job failed")
		if nerr := p.queue.Nack(finCtx, job.ID, err.Error()); nerr != nil {
			log.Error().Err(nerr).Msg("nack failed")
		}
		return nil
	}

	metrics.ObserveJob(provider, string(model.JobStateCompleted), "", took)
	log.Info().Str("flight", rec.FlightNumber).Dur("duration", took).Msg("job completed")
	if aerr := p.queue.Ack(finCtx, job.ID); aerr != nil {
		log.Error().Err(aerr).Msg("ack failed")
	}
	return nil
}

// run executes the provider strategy in a fresh browser. A panic in the
// strategy fails the job instead of the worker.
func (p *ScrapeJobProcessor) run(ctx context.Context, job *model.Job) (rec *model.BookingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()

	strategy, err := p.strategies.Lookup(job.Request.Provider)
	if err != nil {
		return nil, err
	}
	if err := strategy.Validate(job.Request); err != nil {
		return nil, err
	}

	proxy := p.proxies.Pick()
	if !proxy.IsZero() {
		logging.With(ctx, p.log).Debug().Str("proxy_user", proxy.Username).Msg("proxy selected")
	}

	err = p.browsers.WithPage(ctx, proxy, func(ctx context.Context, page adapter.Page) error {
		var runErr error
		rec, runErr = strategy.Run(ctx, page, job.Request)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
