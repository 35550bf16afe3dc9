package provider

import (
	"context"
	"fmt"
	"time"

	"booking-scraper-service/internal/config"
	"booking-scraper-service/internal/domain"
)

// Signals is one observation of a results page.
type Signals struct {
	Failure error // explicit error shown by the portal, ends the wait
	Loading bool
	Success bool
}

// Probe inspects the page once.
type Probe func(ctx context.Context) (Signals, error)

// AwaitStable polls probe every cfg.Interval until Success has held, with no
// Loading, for cfg.Window without interruption. A loading indicator or a
// vanished success marker restarts the window. Gives up with ErrTimeout
// after cfg.Timeout.
func AwaitStable(ctx context.Context, cfg config.StabilityConfig, probe Probe) error {
	start := time.Now()
	var stableSince time.Time

	for {
		sig, err := probe(ctx)
		if err != nil {
			return err
		}
		if sig.Failure != nil {
			return sig.Failure
		}

		switch {
		case sig.Loading:
			stableSince = time.Time{}
		case sig.Success:
			if stableSince.IsZero() {
				stableSince = time.Now()
			} else if time.Since(stableSince) >= cfg.Window {
				return nil
			}
		default:
			stableSince = time.Time{}
		}

		if time.Since(start) >= cfg.Timeout {
			return fmt.Errorf("%w: results did not settle within %s", domain.ErrTimeout, cfg.Timeout)
		}
		if err := sleep(ctx, cfg.Interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
