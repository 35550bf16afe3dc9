//go:build !integration

package worker

import (
	"context"
	"sync"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
)

type mockQueue struct {
	mu      sync.Mutex
	pending []*model.Job
	acked   []string
	nacked  map[string]string
}

func newMockQueue(jobs ...*model.Job) *mockQueue {
	return &mockQueue{pending: jobs, nacked: map[string]string{}}
}

func (q *mockQueue) Enqueue(ctx context.Context, req model.LookupRequest) (string, error) {
	panic("not used")
}

func (q *mockQueue) Dequeue(ctx context.Context, block time.Duration) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, domain.ErrQueueEmpty
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.State = model.JobStateActive
	return job, nil
}

func (q *mockQueue) Ack(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, jobID)
	return nil
}

func (q *mockQueue) Nack(ctx context.Context, jobID string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nacked[jobID] = reason
	return nil
}

func (q *mockQueue) Get(ctx context.Context, jobID string) (*model.Job, *model.JobReceipt, error) {
	return nil, nil, domain.ErrNotFound
}

type mockCache struct {
	mu   sync.Mutex
	sets map[string]*model.BookingRecord
	ttl  time.Duration
	err  error
}

func (c *mockCache) Get(ctx context.Context, p model.Provider, locator, lastName string) (*model.BookingRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.sets[model.CacheKey(p, locator, lastName)]; ok {
		return rec, nil
	}
	return nil, domain.ErrNotFound
}

func (c *mockCache) Set(ctx context.Context, p model.Provider, locator, lastName string, rec *model.BookingRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.sets == nil {
		c.sets = map[string]*model.BookingRecord{}
	}
	c.sets[model.CacheKey(p, locator, lastName)] = rec
	c.ttl = ttl
	return nil
}

type mockStrategy struct {
	provider model.Provider
	RunFunc  func(ctx context.Context, page adapter.Page, req model.LookupRequest) (*model.BookingRecord, error)
}

func (s *mockStrategy) Provider() model.Provider               { return s.provider }
func (s *mockStrategy) Validate(req model.LookupRequest) error { return nil }
func (s *mockStrategy) Run(ctx context.Context, page adapter.Page, req model.LookupRequest) (*model.BookingRecord, error) {
	return s.RunFunc(ctx, page, req)
}

type mockResolver map[model.Provider]adapter.Strategy

func (r mockResolver) Lookup(p model.Provider) (adapter.Strategy, error) {
	if s, ok := r[p]; ok {
		return s, nil
	}
	return nil, domain.ErrProviderUnsupported
}

type mockProxies struct{ picks int }

func (m *mockProxies) Pick() model.ProxyDescriptor {
	m.picks++
	return model.ProxyDescriptor{Endpoint: "http://gw:80", Username: "u-1", Password: "p"}
}

// mockBrowsers hands a nil page to fn and records the proxy it was given.
type mockBrowsers struct {
	mu      sync.Mutex
	proxies []model.ProxyDescriptor
}

func (b *mockBrowsers) WithPage(ctx context.Context, proxy model.ProxyDescriptor, fn adapter.PageFunc) error {
	b.mu.Lock()
	b.proxies = append(b.proxies, proxy)
	b.mu.Unlock()
	return fn(ctx, nil)
}
