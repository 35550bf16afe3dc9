//go:build !integration

package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
)

// memQueue is an in-memory JobQueue. Jobs move to receipts via finish.
type memQueue struct {
	mu       sync.Mutex
	seq      int
	jobs     map[string]*model.Job
	receipts map[string]*model.JobReceipt
	enqueued []model.LookupRequest
	err      error
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: map[string]*model.Job{}, receipts: map[string]*model.JobReceipt{}}
}

func (q *memQueue) Enqueue(ctx context.Context, req model.LookupRequest) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.seq++
	id := fmt.Sprintf("job-%d", q.seq)
	q.jobs[id] = &model.Job{ID: id, Request: req, State: model.JobStateQueued, CreatedAt: time.Now()}
	q.enqueued = append(q.enqueued, req)
	return id, nil
}

func (q *memQueue) Dequeue(ctx context.Context, block time.Duration) (*model.Job, error) {
	return nil, domain.ErrQueueEmpty
}

func (q *memQueue) Ack(ctx context.Context, jobID string) error {
	return q.finish(jobID, model.JobStateCompleted, "")
}

func (q *memQueue) Nack(ctx context.Context, jobID string, reason string) error {
	return q.finish(jobID, model.JobStateFailed, reason)
}

func (q *memQueue) finish(id string, state model.JobState, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return domain.ErrInvalidTransition
	}
	delete(q.jobs, id)
	q.receipts[id] = &model.JobReceipt{ID: id, State: state, FailureReason: reason, Request: job.Request, FinishedAt: time.Now()}
	return nil
}

func (q *memQueue) activate(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[id].State = model.JobStateActive
}

func (q *memQueue) Get(ctx context.Context, jobID string) (*model.Job, *model.JobReceipt, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[jobID]; ok {
		cp := *j
		return &cp, nil, nil
	}
	if r, ok := q.receipts[jobID]; ok {
		cp := *r
		return nil, &cp, nil
	}
	return nil, nil, domain.ErrNotFound
}

// memCache is an in-memory ResultCache keyed like the Redis one.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*model.BookingRecord
	getErr  error
}

func newMemCache() *memCache { return &memCache{entries: map[string]*model.BookingRecord{}} }

func (c *memCache) Get(ctx context.Context, p model.Provider, locator, lastName string) (*model.BookingRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	rec, ok := c.entries[model.CacheKey(p, locator, lastName)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (c *memCache) Set(ctx context.Context, p model.Provider, locator, lastName string, rec *model.BookingRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[model.CacheKey(p, locator, lastName)] = rec
	return nil
}

// stubStrategy only validates; Run is never reached from the use case.
type stubStrategy struct {
	provider model.Provider
	validate func(model.LookupRequest) error
}

func (s stubStrategy) Provider() model.Provider { return s.provider }

func (s stubStrategy) Validate(req model.LookupRequest) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(req)
}

func (s stubStrategy) Run(ctx context.Context, page adapter.Page, req model.LookupRequest) (*model.BookingRecord, error) {
	return nil, fmt.Errorf("stubStrategy.Run called")
}

type stubResolver map[model.Provider]adapter.Strategy

func (r stubResolver) Lookup(p model.Provider) (adapter.Strategy, error) {
	s, ok := r[p]
	if !ok {
		return nil, domain.ErrProviderUnsupported
	}
	return s, nil
}

func requireOrigin(req model.LookupRequest) error {
	if req.Origin == "" {
		return fmt.Errorf("%w: origin is required for AZUL", domain.ErrValidation)
	}
	return nil
}

func requireLastName(req model.LookupRequest) error {
	if req.LastName == "" {
		return fmt.Errorf("%w: lastName is required", domain.ErrValidation)
	}
	return nil
}

func defaultResolver() stubResolver {
	return stubResolver{
		model.ProviderLatam: stubStrategy{provider: model.ProviderLatam, validate: requireLastName},
		model.ProviderGol:   stubStrategy{provider: model.ProviderGol, validate: requireLastName},
		model.ProviderAzul:  stubStrategy{provider: model.ProviderAzul, validate: requireOrigin},
	}
}
