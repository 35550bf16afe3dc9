package adapter

import (
	"context"

	"booking-scraper-service/internal/domain/model"
)

// Strategy automates one provider's self-service portal.
type Strategy interface {
	Provider() model.Provider
	// Validate checks provider-specific mandatory inputs without touching the network.
	Validate(req model.LookupRequest) error
	Run(ctx context.Context, page Page, req model.LookupRequest) (*model.BookingRecord, error)
}

// StrategyResolver maps a provider to its strategy.
type StrategyResolver interface {
	Lookup(p model.Provider) (Strategy, error)
}
