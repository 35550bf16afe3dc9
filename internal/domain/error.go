package domain

import (
	"context"
	"errors"
)

var (
	// Lookup failure taxonomy. Every kind is terminal for the job that hits it.
	ErrValidation          = errors.New("validation error")
	ErrConnection          = errors.New("connection error")
	ErrNotFound            = errors.New("not found")
	ErrAutocomplete        = errors.New("autocomplete error")
	ErrTimeout             = errors.New("timeout")
	ErrParse               = errors.New("parse error")
	ErrProviderUnsupported = errors.New("provider unsupported")

	// Service errors
	ErrQueueEmpty        = errors.New("queue empty")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrRateLimited       = errors.New("rate limited")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrValidation, "validation"},
	{ErrConnection, "connection"},
	{ErrNotFound, "not_found"},
	{ErrAutocomplete, "autocomplete"},
	{ErrTimeout, "timeout"},
	{ErrParse, "parse"},
	{ErrProviderUnsupported, "provider_unsupported"},
}

// Kind returns a stable label for the first taxonomy error found in err's chain.
// A bare context deadline counts as a timeout.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unclassified"
}
