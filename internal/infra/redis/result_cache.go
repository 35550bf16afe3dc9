package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/repository"
	"booking-scraper-service/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
)

var _ repository.ResultCache = (*ResultCache)(nil)

// Sealer encrypts values at rest, bound to their key.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(data, aad []byte) ([]byte, error)
}

// ResultCache stores normalized bookings under the upper-cased
// scrape:<provider>:<locator>:<lastname> key. With a sealer the stored
// JSON is encrypted, since records carry passenger names.
type ResultCache struct {
	client *Client
	sealer Sealer
}

// NewResultCache stores plaintext JSON when sealer is nil.
func NewResultCache(client *Client, sealer Sealer) *ResultCache {
	return &ResultCache{client: client, sealer: sealer}
}

func (c *ResultCache) Get(ctx context.Context, provider model.Provider, locator, lastName string) (*model.BookingRecord, error) {
	key := model.CacheKey(provider, locator, lastName)
	raw, err := c.client.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest("booking", false)
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	data := []byte(raw)
	if c.sealer != nil {
		if data, err = c.sealer.Open(data, []byte(key)); err != nil {
			metrics.IncCacheRequest("booking", false)
			return nil, domain.ErrNotFound
		}
	}

	var rec model.BookingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt entry behaves as a miss; the next success overwrites it.
		metrics.IncCacheRequest("booking", false)
		return nil, domain.ErrNotFound
	}
	metrics.IncCacheRequest("booking", true)
	return &rec, nil
}

func (c *ResultCache) Set(ctx context.Context, provider model.Provider, locator, lastName string, record *model.BookingRecord, ttl time.Duration) error {
	if record == nil {
		return errors.New("nil booking record")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	key := model.CacheKey(provider, locator, lastName)
	if c.sealer != nil {
		if data, err = c.sealer.Seal(data, []byte(key)); err != nil {
			return err
		}
	}
	return c.client.Set(ctx, key, data, ttl)
}
