package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"
)

var _ adapter.Page = (*page)(nil)

const (
	pollEvery  = 200 * time.Millisecond
	subBacklog = 32
)

// resolveJS marks the first visible element matching a CSS selector list and
// an optional case-insensitive pattern, so chromedp can address it by query.
const resolveJS = `(function(css, pattern, token) {
	const re = pattern ? new RegExp(pattern, 'i') : null;
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		const s = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	const labelOf = (el) => {
		const parts = [el.innerText || el.textContent || '', el.getAttribute('aria-label') || '', el.getAttribute('placeholder') || ''];
		if (el.labels) { for (const l of el.labels) parts.push(l.innerText || ''); }
		return parts.join(' ');
	};
	for (const el of document.querySelectorAll(css)) {
		if (!visible(el)) continue;
		if (re && !re.test(labelOf(el))) continue;
		el.setAttribute('data-bx', token);
		return true;
	}
	return false;
})(%s, %s, %s)`

type subscription struct {
	filter adapter.ResponseFilter
	ch     chan adapter.Response
}

// page is one chromedp tab. Every action runs on the tab context and is
// aborted when the caller's ctx ends.
type page struct {
	ctx    context.Context
	cancel context.CancelFunc
	proxy  model.ProxyDescriptor
	locale string
	log    *zerolog.Logger

	marks atomic.Int64

	mu      sync.Mutex
	nextSub int
	subs    map[int]*subscription
	methods map[network.RequestID]string
	pending map[network.RequestID]adapter.ResponseMeta
}

func newPage(ctx context.Context, cancel context.CancelFunc, proxy model.ProxyDescriptor, locale string, log *zerolog.Logger) *page {
	return &page{
		ctx:     ctx,
		cancel:  cancel,
		proxy:   proxy,
		locale:  locale,
		log:     log,
		subs:    make(map[int]*subscription),
		methods: make(map[network.RequestID]string),
		pending: make(map[network.RequestID]adapter.ResponseMeta),
	}
}

// attach enables the CDP domains the page relies on. It is the first action
// on a tab, so for a fresh browser it also starts the process.
func (p *page) attach(ctx context.Context) error {
	chromedp.ListenTarget(p.ctx, p.onEvent)

	actions := []chromedp.Action{network.Enable()}
	if p.locale != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage(p.locale)}))
	}
	if p.proxy.Username != "" {
		actions = append(actions, fetch.Enable().WithHandleAuthRequests(true))
	}
	if err := p.run(ctx, actions...); err != nil {
		return fmt.Errorf("%w: attach browser tab: %v", domain.ErrConnection, err)
	}
	return nil
}

func acceptLanguage(locale string) string {
	lang, _, _ := strings.Cut(locale, "-")
	if lang == locale {
		return locale
	}
	return fmt.Sprintf("%s,%s;q=0.9", locale, lang)
}

func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// executor returns a context that can issue raw CDP commands from event
// handlers, which must not block the listener.
func (p *page) executor() context.Context {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return p.ctx
	}
	return cdp.WithExecutor(p.ctx, c.Target)
}

func (p *page) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.mu.Lock()
		p.methods[e.RequestID] = e.Request.Method
		p.mu.Unlock()

	case *network.EventResponseReceived:
		p.mu.Lock()
		meta := adapter.ResponseMeta{
			URL:         e.Response.URL,
			Method:      p.methods[e.RequestID],
			Status:      int(e.Response.Status),
			ContentType: e.Response.MimeType,
		}
		delete(p.methods, e.RequestID)
		for _, s := range p.subs {
			if s.filter(meta) {
				p.pending[e.RequestID] = meta
				break
			}
		}
		p.mu.Unlock()

	case *network.EventLoadingFinished:
		p.mu.Lock()
		meta, ok := p.pending[e.RequestID]
		delete(p.pending, e.RequestID)
		p.mu.Unlock()
		if ok {
			go p.fetchBody(e.RequestID, meta)
		}

	case *network.EventLoadingFailed:
		p.mu.Lock()
		delete(p.methods, e.RequestID)
		delete(p.pending, e.RequestID)
		p.mu.Unlock()

	case *fetch.EventRequestPaused:
		go func() {
			if err := fetch.ContinueRequest(e.RequestID).Do(p.executor()); err != nil {
				p.log.Debug().Err(err).Msg("continue paused request")
			}
		}()

	case *fetch.EventAuthRequired:
		go func() {
			resp := &fetch.AuthChallengeResponse{
				Response: fetch.AuthChallengeResponseResponseProvideCredentials,
				Username: p.proxy.Username,
				Password: p.proxy.Password,
			}
			if err := fetch.ContinueWithAuth(e.RequestID, resp).Do(p.executor()); err != nil {
				p.log.Debug().Err(err).Msg("answer proxy auth challenge")
			}
		}()
	}
}

func (p *page) fetchBody(id network.RequestID, meta adapter.ResponseMeta) {
	body, err := network.GetResponseBody(id).Do(p.executor())
	if err != nil {
		p.log.Debug().Err(err).Str("url", meta.URL).Msg("read response body")
		return
	}
	resp := adapter.Response{ResponseMeta: meta, Body: body}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subs {
		if !s.filter(meta) {
			continue
		}
		select {
		case s.ch <- resp:
		default:
			p.log.Warn().Str("url", meta.URL).Msg("response subscriber is full, dropping")
		}
	}
}

func (p *page) Subscribe(filter adapter.ResponseFilter) (<-chan adapter.Response, func()) {
	s := &subscription{filter: filter, ch: make(chan adapter.Response, subBacklog)}

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = s
	p.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(s.ch)
			p.mu.Unlock()
		})
	}
}

// resolve marks the element loc points at and returns a query for it.
func (p *page) resolve(ctx context.Context, loc adapter.Locator) (string, bool, error) {
	token := fmt.Sprintf("bx-%d", p.marks.Add(1))
	css, _ := json.Marshal(loc.CSS)
	pattern, _ := json.Marshal(loc.Text)
	tok, _ := json.Marshal(token)

	var found bool
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(resolveJS, css, pattern, tok), &found)); err != nil {
		return "", false, err
	}
	return fmt.Sprintf(`[data-bx=%q]`, token), found, nil
}

func (p *page) mustResolve(ctx context.Context, loc adapter.Locator) (string, error) {
	sel, found, err := p.resolve(ctx, loc)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errNotVisible(loc)
	}
	return sel, nil
}

// errNotVisible is left unclassified. ErrNotFound is reserved for a portal
// saying the reservation does not exist.
func errNotVisible(loc adapter.Locator) error {
	return fmt.Errorf("element %s is not visible", describe(loc))
}

func describe(loc adapter.Locator) string {
	if loc.Text == "" {
		return fmt.Sprintf("%q", loc.CSS)
	}
	return fmt.Sprintf("%q /%s/", loc.CSS, loc.Text)
}

func (p *page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: navigate %s: %v", domain.ErrConnection, url, err)
	}
	return nil
}

func (p *page) Reload(ctx context.Context) error {
	if err := p.run(ctx, chromedp.Reload()); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: reload: %v", domain.ErrConnection, err)
	}
	return nil
}

func (p *page) IsVisible(ctx context.Context, loc adapter.Locator) (bool, error) {
	_, found, err := p.resolve(ctx, loc)
	return found, err
}

func (p *page) WaitVisible(ctx context.Context, loc adapter.Locator, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollEvery)
	defer tick.Stop()

	for {
		found, err := p.IsVisible(ctx, loc)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: element %s not visible after %s", domain.ErrTimeout, describe(loc), timeout)
		case <-tick.C:
		}
	}
}

func (p *page) Click(ctx context.Context, loc adapter.Locator) error {
	sel, err := p.mustResolve(ctx, loc)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *page) Fill(ctx context.Context, loc adapter.Locator, value string) error {
	sel, err := p.mustResolve(ctx, loc)
	if err != nil {
		return err
	}
	return p.run(ctx,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.Evaluate(selectAllJS(sel), nil),
		chromedp.KeyEvent(kb.Backspace),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

func (p *page) TypeSlowly(ctx context.Context, loc adapter.Locator, value string, delay time.Duration) error {
	sel, err := p.mustResolve(ctx, loc)
	if err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.Focus(sel, chromedp.ByQuery)); err != nil {
		return err
	}
	for _, r := range value {
		if err := p.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}

func (p *page) Clear(ctx context.Context, loc adapter.Locator) error {
	sel, err := p.mustResolve(ctx, loc)
	if err != nil {
		return err
	}
	return p.run(ctx,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.Evaluate(selectAllJS(sel), nil),
		chromedp.KeyEvent(kb.Backspace),
	)
}

func selectAllJS(sel string) string {
	q, _ := json.Marshal(sel)
	return fmt.Sprintf(`(function(){ const el = document.querySelector(%s); if (el && el.select) el.select(); })()`, q)
}

func (p *page) Focus(ctx context.Context, loc adapter.Locator) error {
	sel, err := p.mustResolve(ctx, loc)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Focus(sel, chromedp.ByQuery))
}

func (p *page) PressKey(ctx context.Context, key string) error {
	var k string
	switch key {
	case adapter.KeyArrowDown:
		k = kb.ArrowDown
	case adapter.KeyEnter:
		k = kb.Enter
	case adapter.KeyTab:
		k = kb.Tab
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	return p.run(ctx, chromedp.KeyEvent(k))
}

func (p *page) InputValue(ctx context.Context, loc adapter.Locator) (string, error) {
	sel, err := p.mustResolve(ctx, loc)
	if err != nil {
		return "", err
	}
	var v string
	if err := p.run(ctx, chromedp.Value(sel, &v, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return v, nil
}

func (p *page) HasText(ctx context.Context, text string) (bool, error) {
	q, _ := json.Marshal(strings.ToLower(text))
	var ok bool
	js := fmt.Sprintf(`!!(document.body && document.body.innerText.toLowerCase().includes(%s))`, q)
	if err := p.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *page) Scroll(ctx context.Context, dy int) error {
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, dy), nil))
}

func (p *page) ClickForPopup(ctx context.Context, loc adapter.Locator, timeout time.Duration) (adapter.Page, error) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return nil, errors.New("page is not attached")
	}
	opener := c.Target.TargetID
	opened := chromedp.WaitNewTarget(p.ctx, func(info *target.Info) bool {
		return info.Type == "page" && info.OpenerID == opener
	})

	if err := p.Click(ctx, loc); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: no tab opened by %s", domain.ErrTimeout, describe(loc))
	case id := <-opened:
		popCtx, cancel := chromedp.NewContext(p.ctx, chromedp.WithTargetID(id))
		pop := newPage(popCtx, cancel, p.proxy, p.locale, p.log)
		if err := pop.attach(ctx); err != nil {
			cancel()
			return nil, err
		}
		return pop, nil
	}
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *page) Close() error {
	p.cancel()
	return nil
}
