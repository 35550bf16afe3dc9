package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-scraper-service/internal/config"
	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
	"booking-scraper-service/internal/infra/logging"

	"github.com/rs/zerolog"
)

var _ adapter.StrategyResolver = (*Registry)(nil)

// Registry is the closed provider to strategy table.
type Registry struct {
	strategies map[model.Provider]adapter.Strategy
}

func NewRegistry(strategies ...adapter.Strategy) *Registry {
	r := &Registry{strategies: make(map[model.Provider]adapter.Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Provider()] = s
	}
	return r
}

// NewDefaultRegistry wires the LATAM, GOL and AZUL strategies.
func NewDefaultRegistry(cfg config.ProvidersConfig, log *zerolog.Logger) (*Registry, error) {
	base, err := newPortal(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewRegistry(NewLatam(base), NewGol(base), NewAzul(base)), nil
}

func (r *Registry) Lookup(p model.Provider) (adapter.Strategy, error) {
	s, ok := r.strategies[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrProviderUnsupported, p)
	}
	return s, nil
}

// portal carries what every strategy shares: timeouts, the portal time zone
// and a sleep that tests can replace.
type portal struct {
	cfg   config.ProvidersConfig
	loc   *time.Location
	log   *zerolog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func newPortal(cfg config.ProvidersConfig, log *zerolog.Logger) (portal, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return portal{}, fmt.Errorf("load provider timezone %q: %w", cfg.Timezone, err)
	}
	return portal{cfg: cfg, loc: loc, log: logging.Component(log, "provider"), sleep: sleep}, nil
}

// navigate loads url under the navigation timeout. Any failure short of the
// job itself ending is a connection problem, usually the proxy.
func (b portal) navigate(ctx context.Context, page adapter.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigationTimeout)
	defer cancel()

	err := page.Navigate(navCtx, url)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, domain.ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: %s unreachable: %v", domain.ErrConnection, url, err)
}

// dismiss clicks an optional overlay such as a cookie banner. Absence or a
// failed click is not an error.
func (b portal) dismiss(ctx context.Context, page adapter.Page, loc adapter.Locator, wait time.Duration) {
	if err := page.WaitVisible(ctx, loc, wait); err != nil {
		return
	}
	if err := page.Click(ctx, loc); err != nil {
		logging.With(ctx, b.log).Debug().Err(err).Msg("overlay click failed")
	}
}

// firstVisible waits until one of locs is visible and returns it.
func (b portal) firstVisible(ctx context.Context, page adapter.Page, timeout time.Duration, locs ...adapter.Locator) (adapter.Locator, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, l := range locs {
			ok, err := page.IsVisible(ctx, l)
			if err != nil {
				return adapter.Locator{}, err
			}
			if ok {
				return l, nil
			}
		}
		if time.Now().After(deadline) {
			return adapter.Locator{}, fmt.Errorf("%w: none of %d fields became visible within %s", domain.ErrTimeout, len(locs), timeout)
		}
		if err := b.sleep(ctx, 250*time.Millisecond); err != nil {
			return adapter.Locator{}, err
		}
	}
}

func requireField(p model.Provider, field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required for %s", domain.ErrValidation, field, p)
	}
	return nil
}
