package adapter

import (
	"context"
	"time"

	"booking-scraper-service/internal/domain/model"
)

// Locator selects the first visible element matching CSS (a selector list)
// whose text, label, aria-label or placeholder matches Text, a
// case-insensitive regular expression. An empty Text matches any element.
type Locator struct {
	CSS  string
	Text string
}

// Key names accepted by Page.PressKey.
const (
	KeyArrowDown = "ArrowDown"
	KeyEnter     = "Enter"
	KeyTab       = "Tab"
)

// ResponseMeta describes a network response before its body is read.
type ResponseMeta struct {
	URL         string
	Method      string
	Status      int
	ContentType string
}

// Response is a network response observed by the page, body included.
type Response struct {
	ResponseMeta
	Body []byte
}

// ResponseFilter decides whether a response body is worth fetching.
type ResponseFilter func(ResponseMeta) bool

// Page is one browser tab. All waits honour ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	IsVisible(ctx context.Context, loc Locator) (bool, error)
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	// TypeSlowly sends value one character at a time with delay in between.
	TypeSlowly(ctx context.Context, loc Locator, value string, delay time.Duration) error
	Clear(ctx context.Context, loc Locator) error
	Focus(ctx context.Context, loc Locator) error
	PressKey(ctx context.Context, key string) error
	InputValue(ctx context.Context, loc Locator) (string, error)
	// HasText reports whether text is part of the rendered page text.
	HasText(ctx context.Context, text string) (bool, error)
	Scroll(ctx context.Context, dy int) error
	// Subscribe streams responses accepted by filter until cancel is called.
	// Subscriptions made before Navigate observe the navigation's traffic.
	Subscribe(filter ResponseFilter) (<-chan Response, func())
	// ClickForPopup clicks loc and returns the tab it opens.
	ClickForPopup(ctx context.Context, loc Locator, timeout time.Duration) (Page, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// PageFunc runs with exclusive use of page.
type PageFunc func(ctx context.Context, page Page) error

// BrowserPool hands out fresh, isolated browser pages.
type BrowserPool interface {
	// WithPage scopes fn to a new browser context egressing through proxy and
	// tears the context down on every exit path.
	WithPage(ctx context.Context, proxy model.ProxyDescriptor, fn PageFunc) error
}

// ProxyAllocator picks one egress identity per job.
type ProxyAllocator interface {
	Pick() model.ProxyDescriptor
}
