package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/ports/adapter"
)

// payloadSlot holds the most recent response body a listener accepted.
type payloadSlot struct {
	mu   sync.Mutex
	body []byte
}

func (s *payloadSlot) store(b []byte) {
	s.mu.Lock()
	s.body = b
	s.mu.Unlock()
}

func (s *payloadSlot) load() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}

// collect drains ch into slot, keeping bodies accepted by keep. The returned
// channel closes once ch is closed and drained.
func collect(ch <-chan adapter.Response, keep func([]byte) bool, slot *payloadSlot) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range ch {
			if keep(r.Body) {
				slot.store(r.Body)
			}
		}
	}()
	return done
}

// awaitResponse returns the first response on ch whose body satisfies accept.
func awaitResponse(ctx context.Context, ch <-chan adapter.Response, accept func([]byte) bool, timeout time.Duration) (adapter.Response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return adapter.Response{}, ctx.Err()
		case <-timer.C:
			return adapter.Response{}, fmt.Errorf("%w: no booking response within %s", domain.ErrTimeout, timeout)
		case r, ok := <-ch:
			if !ok {
				return adapter.Response{}, fmt.Errorf("%w: response stream closed", domain.ErrConnection)
			}
			if accept == nil || accept(r.Body) {
				return r, nil
			}
		}
	}
}

// jsonResponses accepts successful JSON responses whose URL contains one of
// fragments. An empty method accepts any method.
func jsonResponses(method string, fragments ...string) adapter.ResponseFilter {
	return func(m adapter.ResponseMeta) bool {
		if m.Status != 200 || !strings.Contains(m.ContentType, "json") {
			return false
		}
		if method != "" && !strings.EqualFold(m.Method, method) {
			return false
		}
		for _, f := range fragments {
			if strings.Contains(m.URL, f) {
				return true
			}
		}
		return false
	}
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

func fullName(first, last string) string {
	return strings.ToUpper(strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last)))
}
