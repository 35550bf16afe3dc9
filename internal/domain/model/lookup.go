package model

import (
	"strings"
)

type Provider string

const (
	ProviderLatam Provider = "LATAM"
	ProviderGol   Provider = "GOL"
	ProviderAzul  Provider = "AZUL"
)

// Providers lists the supported providers in a fixed order.
var Providers = []Provider{ProviderLatam, ProviderGol, ProviderAzul}

var providerAliases = map[string]Provider{
	"LATAM": ProviderLatam,
	"A":     ProviderLatam,
	"GOL":   ProviderGol,
	"B":     ProviderGol,
	"AZUL":  ProviderAzul,
	"C":     ProviderAzul,
}

// ParseProvider resolves a provider key or its single-letter alias, case-insensitively.
func ParseProvider(s string) (Provider, bool) {
	p, ok := providerAliases[strings.ToUpper(strings.TrimSpace(s))]
	return p, ok
}

// LookupRequest is the immutable input of a booking lookup.
type LookupRequest struct {
	Provider    Provider `json:"provider"`
	Locator     string   `json:"locator"`
	LastName    string   `json:"lastName,omitempty"`
	Origin      string   `json:"origin,omitempty"`
	RequesterID string   `json:"requesterId,omitempty"`
}

// Normalize returns a copy with locator, last name and origin trimmed and upper-cased.
func (r LookupRequest) Normalize() LookupRequest {
	r.Locator = strings.ToUpper(strings.TrimSpace(r.Locator))
	r.LastName = strings.ToUpper(strings.TrimSpace(r.LastName))
	r.Origin = strings.ToUpper(strings.TrimSpace(r.Origin))
	return r
}

// CacheKey is the case-insensitive result cache key for the request.
func (r LookupRequest) CacheKey() string {
	return CacheKey(r.Provider, r.Locator, r.LastName)
}

func CacheKey(provider Provider, locator, lastName string) string {
	return strings.ToUpper("scrape:" + string(provider) + ":" + strings.TrimSpace(locator) + ":" + strings.TrimSpace(lastName))
}
