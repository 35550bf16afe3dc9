//go:build !integration

package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"booking-scraper-service/internal/config"
	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

type fakeSub struct {
	filter adapter.ResponseFilter
	ch     chan adapter.Response
}

// fakePage is a scripted adapter.Page. Hooks left nil behave as "nothing
// visible, nothing happens".
type fakePage struct {
	mu    sync.Mutex
	calls []string
	subs  []*fakeSub

	VisibleFunc func(loc adapter.Locator) bool
	HasTextFunc func(text string) bool
	ValueFunc   func(loc adapter.Locator) string
	OnNavigate  func(p *fakePage, url string)
	OnReload    func(p *fakePage)
	OnSubscribe func(p *fakePage)
	OnClick     func(p *fakePage, loc adapter.Locator)
	Popup       *fakePage
	NavigateErr error
}

func (p *fakePage) record(format string, args ...interface{}) {
	p.mu.Lock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
	p.mu.Unlock()
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) emit(r adapter.Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subs {
		if s.filter(r.ResponseMeta) {
			s.ch <- r
		}
	}
}

func (p *fakePage) emitJSON(url string, body []byte) {
	p.emit(adapter.Response{
		ResponseMeta: adapter.ResponseMeta{URL: url, Method: "GET", Status: 200, ContentType: "application/json"},
		Body:         body,
	})
}

func (p *fakePage) visible(loc adapter.Locator) bool {
	return p.VisibleFunc != nil && p.VisibleFunc(loc)
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.record("navigate:%s", url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	if p.OnNavigate != nil {
		p.OnNavigate(p, url)
	}
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.record("reload")
	if p.OnReload != nil {
		p.OnReload(p)
	}
	return nil
}

func (p *fakePage) IsVisible(ctx context.Context, loc adapter.Locator) (bool, error) {
	return p.visible(loc), nil
}

func (p *fakePage) WaitVisible(ctx context.Context, loc adapter.Locator, timeout time.Duration) error {
	if p.visible(loc) {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrTimeout, loc.CSS)
}

func (p *fakePage) Click(ctx context.Context, loc adapter.Locator) error {
	p.record("click:%s", loc.CSS)
	if p.OnClick != nil {
		p.OnClick(p, loc)
	}
	return nil
}

func (p *fakePage) Fill(ctx context.Context, loc adapter.Locator, value string) error {
	p.record("fill:%s=%s", loc.CSS, value)
	return nil
}

func (p *fakePage) TypeSlowly(ctx context.Context, loc adapter.Locator, value string, delay time.Duration) error {
	p.record("type:%s=%s", loc.CSS, value)
	return nil
}

func (p *fakePage) Clear(ctx context.Context, loc adapter.Locator) error {
	p.record("clear:%s", loc.CSS)
	return nil
}

func (p *fakePage) Focus(ctx context.Context, loc adapter.Locator) error {
	p.record("focus:%s", loc.CSS)
	return nil
}

func (p *fakePage) PressKey(ctx context.Context, key string) error {
	p.record("press:%s", key)
	return nil
}

func (p *fakePage) InputValue(ctx context.Context, loc adapter.Locator) (string, error) {
	if p.ValueFunc == nil {
		return "", nil
	}
	return p.ValueFunc(loc), nil
}

func (p *fakePage) HasText(ctx context.Context, text string) (bool, error) {
	return p.HasTextFunc != nil && p.HasTextFunc(text), nil
}

func (p *fakePage) Scroll(ctx context.Context, dy int) error {
	p.record("scroll:%d", dy)
	return nil
}

func (p *fakePage) Subscribe(filter adapter.ResponseFilter) (<-chan adapter.Response, func()) {
	s := &fakeSub{filter: filter, ch: make(chan adapter.Response, 16)}
	p.mu.Lock()
	p.subs = append(p.subs, s)
	p.mu.Unlock()
	if p.OnSubscribe != nil {
		p.OnSubscribe(p)
	}

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, cur := range p.subs {
				if cur == s {
					p.subs = append(p.subs[:i], p.subs[i+1:]...)
					break
				}
			}
			close(s.ch)
		})
	}
}

func (p *fakePage) ClickForPopup(ctx context.Context, loc adapter.Locator, timeout time.Duration) (adapter.Page, error) {
	p.record("popup:%s", loc.CSS)
	if p.Popup == nil {
		return nil, fmt.Errorf("%w: no popup", domain.ErrTimeout)
	}
	return p.Popup, nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (p *fakePage) Close() error {
	p.record("close")
	return nil
}

func testPortal(t *testing.T) portal {
	t.Helper()
	log := zerolog.Nop()
	base, err := newPortal(config.ProvidersConfig{
		Timezone:          "America/Sao_Paulo",
		NavigationTimeout: time.Second,
		ElementTimeout:    time.Second,
		ResponseTimeout:   time.Second,
		TypingDelay:       time.Millisecond,
		Stability: config.StabilityConfig{
			Interval: 5 * time.Millisecond,
			Window:   20 * time.Millisecond,
			Timeout:  500 * time.Millisecond,
		},
		LatamURL: "https://latam.example/minhas-viagens",
		GolURL:   "https://gol.example/encontrar-viagem",
		AzulURL:  "https://azul.example/minhas-viagens",
	}, &log)
	if err != nil {
		t.Fatalf("newPortal: %v", err)
	}
	base.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return base
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return b
}

func contains(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}

func count(calls []string, want string) int {
	n := 0
	for _, c := range calls {
		if c == want {
			n++
		}
	}
	return n
}
