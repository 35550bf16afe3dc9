package browser

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"booking-scraper-service/internal/config"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
	"booking-scraper-service/internal/infra/logging"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

var _ adapter.BrowserPool = (*Pool)(nil)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.0.0",
}

// Pool launches one isolated Chrome process per WithPage call. Slots bound
// how many run at once.
type Pool struct {
	cfg   config.BrowserConfig
	slots chan struct{}
	log   *zerolog.Logger
	intn  func(int) int
}

func NewPool(cfg config.BrowserConfig, size int, log *zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	return &Pool{
		cfg:   cfg,
		slots: make(chan struct{}, size),
		log:   logging.Component(log, "browser"),
		intn:  rand.IntN,
	}
}

func (p *Pool) allocatorOptions(proxy model.ProxyDescriptor) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", p.cfg.Locale),
		chromedp.UserAgent(p.cfg.UserAgents[p.intn(len(p.cfg.UserAgents))]),
		chromedp.WindowSize(1280, 720),
	)
	if proxy.Endpoint != "" {
		opts = append(opts, chromedp.ProxyServer(proxy.Endpoint))
	}
	if p.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
	}
	return opts
}

// WithPage runs fn on a fresh browser egressing through proxy. The browser
// is killed on every exit path, including a panic in fn.
func (p *Pool) WithPage(ctx context.Context, proxy model.ProxyDescriptor, fn adapter.PageFunc) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	log := logging.With(ctx, p.log)
	base := context.WithoutCancel(ctx)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(base, p.allocatorOptions(proxy)...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	pg := newPage(tabCtx, cancelTab, proxy, p.cfg.Locale, log)
	start := time.Now()
	if err := pg.attach(ctx); err != nil {
		return err
	}
	log.Debug().Dur("startup", time.Since(start)).Bool("proxied", !proxy.IsZero()).Msg("browser ready")

	err := fn(ctx, pg)
	if err != nil && p.cfg.ScreenshotDir != "" {
		p.saveScreenshot(ctx, pg, log)
	}
	return err
}

// saveScreenshot is best effort; it gets its own short deadline because the
// job ctx may already be done.
func (p *Pool) saveScreenshot(ctx context.Context, pg *page, log *zerolog.Logger) {
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	buf, err := pg.Screenshot(shotCtx)
	if err != nil {
		log.Debug().Err(err).Msg("failure screenshot")
		return
	}
	name := logging.JobID(ctx)
	if name == "" {
		name = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	path := filepath.Join(p.cfg.ScreenshotDir, "fail-"+name+".png")
	if err := os.MkdirAll(p.cfg.ScreenshotDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("create screenshot dir")
		return
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		log.Warn().Err(err).Msg("write failure screenshot")
		return
	}
	log.Info().Str("path", path).Msg("failure screenshot saved")
}
