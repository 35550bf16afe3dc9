package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
	"booking-scraper-service/internal/domain/ports/repository"
	"booking-scraper-service/internal/infra/logging"
	"booking-scraper-service/internal/infra/metrics"
)

// Compile-time check
var _ ScrapeUseCase = (*scrapeUC)(nil)

const SourceCache = "cache"

// SubmitResult is either a queued job or, on a cache hit, the finished record.
type SubmitResult struct {
	JobID  string
	Status model.JobState
	Result *model.BookingRecord
	Source string
}

type PollResult struct {
	JobID         string
	Status        model.JobState
	Result        *model.BookingRecord
	FailureReason string
}

type ScrapeUseCase interface {
	Submit(ctx context.Context, req model.LookupRequest) (*SubmitResult, error)
	Poll(ctx context.Context, jobID string) (*PollResult, error)
}

var (
	locatorPattern  = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)
	lastNamePattern = regexp.MustCompile(`^[\p{L} '\-]+$`)
	originPattern   = regexp.MustCompile(`^[A-Z]{3}$`)
)

const maxLastName = 64

type scrapeUC struct {
	queue      repository.JobQueue
	cache      repository.ResultCache
	strategies adapter.StrategyResolver
	log        *zerolog.Logger
	devMode    bool
}

func NewScrapeUseCase(queue repository.JobQueue, cache repository.ResultCache, strategies adapter.StrategyResolver, log *zerolog.Logger, devMode bool) *scrapeUC {
	return &scrapeUC{
		queue:      queue,
		cache:      cache,
		strategies: strategies,
		log:        logging.Component(log, "scrape_uc"),
		devMode:    devMode,
	}
}

// Submit answers from the result cache when it can and enqueues a job
// otherwise. Nothing is enqueued on a hit or on invalid input.
func (u *scrapeUC) Submit(ctx context.Context, req model.LookupRequest) (*SubmitResult, error) {
	provider, ok := model.ParseProvider(string(req.Provider))
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrProviderUnsupported, req.Provider)
	}
	req.Provider = provider
	req = req.Normalize()

	if err := validateShape(req); err != nil {
		return nil, err
	}
	strategy, err := u.strategies.Lookup(provider)
	if err != nil {
		return nil, err
	}
	if err := strategy.Validate(req); err != nil {
		return nil, err
	}

	log := logging.With(logging.WithProvider(ctx, string(provider)), u.log)

	rec, err := u.cache.Get(ctx, provider, req.Locator, req.LastName)
	switch {
	case err == nil:
		log.Debug().Str("locator", logging.Redact(req.Locator, u.devMode)).Msg("served from cache")
		return &SubmitResult{Status: model.JobStateCompleted, Result: rec, Source: SourceCache}, nil
	case !errors.Is(err, domain.ErrNotFound):
		// A broken cache must not block lookups; fall through to the queue.
		log.Warn().Err(err).Msg("result cache read failed")
	}

	id, err := u.queue.Enqueue(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	metrics.IncJobEnqueued(string(provider))
	log.Info().Str("job_id", id).Str("locator", logging.Redact(req.Locator, u.devMode)).Msg("job enqueued")

	return &SubmitResult{JobID: id, Status: model.JobStateQueued}, nil
}

// Poll reports a job's state. A completed job's record is read back from
// the result cache; once that entry has expired the job is gone.
func (u *scrapeUC) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	if jobID == "" {
		return nil, domain.ErrNotFound
	}
	job, receipt, err := u.queue.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job != nil {
		return &PollResult{JobID: job.ID, Status: job.State}, nil
	}

	out := &PollResult{JobID: receipt.ID, Status: receipt.State}
	switch receipt.State {
	case model.JobStateFailed:
		out.FailureReason = receipt.FailureReason
	case model.JobStateCompleted:
		r := receipt.Request
		rec, err := u.cache.Get(ctx, r.Provider, r.Locator, r.LastName)
		if err != nil {
			return nil, err
		}
		out.Result = rec
	}
	return out, nil
}

func validateShape(req model.LookupRequest) error {
	if req.Locator == "" {
		return fmt.Errorf("%w: locator is required", domain.ErrValidation)
	}
	if !locatorPattern.MatchString(req.Locator) {
		return fmt.Errorf("%w: locator must be 1 to 16 letters or digits", domain.ErrValidation)
	}
	if req.LastName != "" {
		if utf8.RuneCountInString(req.LastName) > maxLastName || !lastNamePattern.MatchString(req.LastName) {
			return fmt.Errorf("%w: lastName must be at most %d letters, spaces, hyphens or apostrophes", domain.ErrValidation, maxLastName)
		}
	}
	if req.Origin != "" && !originPattern.MatchString(req.Origin) {
		return fmt.Errorf("%w: origin must be a three-letter airport code", domain.ErrValidation)
	}
	return nil
}
