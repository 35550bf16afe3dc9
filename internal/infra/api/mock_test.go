//go:build !integration

package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
	"booking-scraper-service/internal/usecase"
)

// fakeUC returns canned results and records what it was asked.
type fakeUC struct {
	mu        sync.Mutex
	submitted []model.LookupRequest
	submit    *usecase.SubmitResult
	submitErr error
	poll      *usecase.PollResult
	pollErr   error
	panicOn   bool
}

func (f *fakeUC) Submit(ctx context.Context, req model.LookupRequest) (*usecase.SubmitResult, error) {
	if f.panicOn {
		panic("boom")
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, req)
	f.mu.Unlock()
	return f.submit, f.submitErr
}

func (f *fakeUC) Poll(ctx context.Context, jobID string) (*usecase.PollResult, error) {
	return f.poll, f.pollErr
}

type fakeLimiter struct {
	mu    sync.Mutex
	keys  []string
	allow bool
	err   error
}

func (l *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

// fixedStrategy answers every LATAM lookup with the same two-trip booking.
type fixedStrategy struct {
	mu   sync.Mutex
	runs int
}

func (s *fixedStrategy) Provider() model.Provider { return model.ProviderLatam }

func (s *fixedStrategy) Validate(req model.LookupRequest) error {
	if req.LastName == "" {
		return fmt.Errorf("%w: lastName is required", domain.ErrValidation)
	}
	return nil
}

func (s *fixedStrategy) Run(ctx context.Context, _ adapter.Page, req model.LookupRequest) (*model.BookingRecord, error) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	if req.Locator != "ABCDEF" {
		return nil, domain.ErrNotFound
	}
	return model.NewBookingRecord(model.ProviderLatam, []model.Trip{
		{Segments: []model.Segment{
			{FlightNumber: "LA3040", Origin: "GRU", Destination: "BSB", Departure: "2025-03-01T13:00:00Z"},
			{FlightNumber: "LA3512", Origin: "BSB", Destination: "REC"},
		}},
		{Segments: []model.Segment{
			{FlightNumber: "LA3391", Origin: "REC", Destination: "GRU"},
		}},
	}, []model.Passenger{{Name: "JOAO SILVA", Seat: "12A"}})
}

func (s *fixedStrategy) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// pagelessBrowsers runs fn without a real browser.
type pagelessBrowsers struct{}

func (pagelessBrowsers) WithPage(ctx context.Context, _ model.ProxyDescriptor, fn adapter.PageFunc) error {
	return fn(ctx, nil)
}
