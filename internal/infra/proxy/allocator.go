package proxy

import (
	"fmt"
	"math/rand/v2"

	"booking-scraper-service/internal/config"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
)

var _ adapter.ProxyAllocator = (*Allocator)(nil)

// Allocator draws one residential identity per job from a gateway that
// exposes PoolSize numbered users behind the same endpoint and password.
type Allocator struct {
	cfg  config.ProxyConfig
	intn func(n int) int
}

// NewAllocator returns an allocator using intn as its random source,
// or math/rand/v2 when intn is nil.
func NewAllocator(cfg config.ProxyConfig, intn func(n int) int) *Allocator {
	if intn == nil {
		intn = rand.IntN
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	return &Allocator{cfg: cfg, intn: intn}
}

// Pick returns a uniformly chosen identity, or the zero descriptor when
// proxying is disabled.
func (a *Allocator) Pick() model.ProxyDescriptor {
	if !a.cfg.Enabled {
		return model.ProxyDescriptor{}
	}
	i := a.intn(a.cfg.PoolSize) + 1
	return model.ProxyDescriptor{
		Endpoint: a.cfg.Server,
		Username: fmt.Sprintf("%s-%d", a.cfg.UsernamePrefix, i),
		Password: a.cfg.Password,
	}
}
