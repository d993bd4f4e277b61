package browser

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rahul/webpilot/pkg/config"
	"go.uber.org/zap"
)

// ChromeLauncher starts a dedicated Chrome process per session.
type ChromeLauncher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

func NewChromeLauncher(cfg config.BrowserConfig, logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg, logger: logger.Named("chrome")}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.cfg.Width > 0 && l.cfg.Height > 0 {
		opts = append(opts, chromedp.WindowSize(l.cfg.Width, l.cfg.Height))
	}
	if l.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ChromePath))
	}
	return opts
}

// Launch starts Chrome and opens one tab. The session is independent of
// ctx; it lives until Close.
func (l *ChromeLauncher) Launch(ctx context.Context) (Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.logger.Sugar().Debugf))

	p := &chromePage{
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		timeout:     l.cfg.NavigationTimeout,
		logger:      l.logger,
	}

	setup := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if l.cfg.Width > 0 && l.cfg.Height > 0 {
		setup = append(setup, emulation.SetDeviceMetricsOverride(int64(l.cfg.Width), int64(l.cfg.Height), 1, false))
	}
	// The first Run allocates the browser and must use the tab context
	// itself: a derived context would tear the browser down when it ends.
	if l.cfg.NavigationTimeout > 0 {
		timer := time.AfterFunc(l.cfg.NavigationTimeout, tabCancel)
		defer timer.Stop()
	}
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		p.Close()
		return nil, sessionErr("launch", err)
	}
	l.logger.Debug("browser launched", zap.Bool("headless", l.cfg.Headless))
	return p, nil
}

type chromePage struct {
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
	logger      *zap.Logger
}

// run executes actions on the tab, bounded by the primitive timeout and by
// the caller's ctx.
func (p *chromePage) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if p.timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.ctx, p.timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return sessionErr(op, err)
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, "navigate", chromedp.Navigate(url))
}

func (p *chromePage) Evaluate(ctx context.Context, script string, res any) error {
	return p.run(ctx, "evaluate", chromedp.Evaluate(script, res))
}

func (p *chromePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// Quality 100 keeps the capture lossless PNG.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, "screenshot", action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) StopLoading(ctx context.Context) error {
	return p.run(ctx, "stop loading", page.StopLoading())
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, "click", chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromePage) Fill(ctx context.Context, selector, text string) error {
	return p.run(ctx, "fill",
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, "content", chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, "location", chromedp.Location(&url))
	return url, err
}

// Close shuts the tab and the browser process. It is safe to call twice.
func (p *chromePage) Close() error {
	var err error
	if p.tabCancel != nil {
		if cerr := chromedp.Cancel(p.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = cerr
		}
		p.tabCancel()
		p.tabCancel = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	return err
}
