package repository

import (
	"context"
	"time"

	"booking-scraper-service/internal/domain/model"
)

// ResultCache maps (provider, locator, last name) to a normalized booking.
// Lookups are case-insensitive. Only successful outcomes are stored.
type ResultCache interface {
	// Get returns domain.ErrNotFound on a miss.
	Get(ctx context.Context, provider model.Provider, locator, lastName string) (*model.BookingRecord, error)
	Set(ctx context.Context, provider model.Provider, locator, lastName string, record *model.BookingRecord, ttl time.Duration) error
}

// RateLimiter is a fixed-window counter shared by all API replicas.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
