// Package browser implements the notices.Browser capability on headless
// Chrome via chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config captures the browser knobs a category run needs.
type Config struct {
	Headless   bool
	NavTimeout time.Duration
	ExpandWait time.Duration
	UserAgent  string
}

// Chrome drives one headless browser. The listing page loaded by LoadPage is
// kept as current state in a dedicated tab; RenderPDF opens its own tab per
// call so detail rendering never disturbs the listing.
type Chrome struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	pageCtx         context.Context
	pageCancel      context.CancelFunc
	logger          *zap.Logger
	navTimeout      time.Duration
	expandWait      time.Duration
	userAgent       string
}

// New launches Chrome and warms up a browser context. The caller owns the
// returned instance exclusively and must Close it.
func New(cfg Config, logger *zap.Logger) (*Chrome, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if cfg.ExpandWait <= 0 {
		cfg.ExpandWait = 10 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	pageCtx, pageCancel := chromedp.NewContext(browserCtx)

	return &Chrome{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		pageCtx:         pageCtx,
		pageCancel:      pageCancel,
		logger:          logger,
		navTimeout:      cfg.NavTimeout,
		expandWait:      cfg.ExpandWait,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the listing tab, the browser and the allocator.
func (c *Chrome) Close() error {
	if c == nil {
		return nil
	}
	c.pageCancel()
	c.browserCancel()
	c.allocatorCancel()
	return nil
}

// LoadPage navigates the listing tab to rawURL and waits for the document
// to settle.
func (c *Chrome) LoadPage(ctx context.Context, rawURL string) error {
	taskCtx, cancel := context.WithTimeout(c.pageCtx, c.navTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	}
	if c.userAgent != "" {
		tasks = append(chromedp.Tasks{emulation.SetUserAgentOverride(c.userAgent)}, tasks...)
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return fmt.Errorf("load %s: %w", rawURL, err)
	}
	return nil
}

type expandResult struct {
	Found  bool   `json:"found"`
	Picked string `json:"picked"`
}

// expandJS locates the "Show entries" select (or the first select on the
// page), prefers an All option, falls back to the largest numeric page size,
// and fires a change event. Mirrors how the listing's table widget expects
// to be driven.
const expandJS = `(() => {
	const selects = Array.from(document.querySelectorAll('label select, select'));
	let control = selects.find(s => {
		const label = (s.parentElement && s.parentElement.textContent) || '';
		const lower = label.toLowerCase();
		return lower.includes('show') && lower.includes('entries');
	});
	if (!control && selects.length > 0) {
		control = selects[0];
	}
	if (!control) {
		return {found: false, picked: ''};
	}
	const options = Array.from(control.options);
	const all = options.find(o => ['all', 'view all', 'show all'].includes(o.textContent.trim().toLowerCase()));
	let picked = '';
	if (all) {
		control.value = all.value;
		picked = all.textContent.trim();
	} else {
		let maxVal = 10;
		let maxOpt = null;
		for (const o of options) {
			const t = o.textContent.trim();
			if (/^[0-9]+$/.test(t) && parseInt(t, 10) > maxVal) {
				maxVal = parseInt(t, 10);
				maxOpt = o;
			}
		}
		if (!maxOpt) {
			return {found: false, picked: ''};
		}
		control.value = maxOpt.value;
		picked = String(maxVal);
	}
	control.dispatchEvent(new Event('change', {bubbles: true}));
	return {found: true, picked};
})()`

// ExpandPagination switches the current listing to its largest page size and
// waits for the row count to grow. A page without a pagination control is
// left as-is; a wait that times out is tolerated because short tables never
// pass the row threshold even fully expanded.
func (c *Chrome) ExpandPagination(ctx context.Context) error {
	taskCtx, cancel := context.WithTimeout(c.pageCtx, c.navTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var res expandResult
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(expandJS, &res)); err != nil {
		return fmt.Errorf("expand pagination: %w", err)
	}
	if !res.Found {
		c.logger.Debug("no pagination control on page")
		return nil
	}
	c.logger.Debug("pagination expanded", zap.String("picked", res.Picked))

	waitCtx, cancelWait := context.WithTimeout(c.pageCtx, c.expandWait)
	defer cancelWait()
	stopWait := forwardCancel(ctx, cancelWait)
	defer stopWait()

	err := chromedp.Run(waitCtx, chromedp.Poll(
		`document.querySelectorAll("table tbody tr").length > 11`,
		nil,
		chromedp.WithPollingInterval(250*time.Millisecond),
	))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, chromedp.ErrPollingTimeout) {
			c.logger.Warn("row count did not grow after expansion; table may simply be short")
			return nil
		}
		return fmt.Errorf("wait for expanded rows: %w", err)
	}
	return nil
}

// HTML returns the full document of the current listing tab.
func (c *Chrome) HTML(ctx context.Context) (string, error) {
	taskCtx, cancel := context.WithTimeout(c.pageCtx, c.navTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot listing html: %w", err)
	}
	return html, nil
}

// RenderPDF prints a detail page to PDF in a throwaway tab.
func (c *Chrome) RenderPDF(ctx context.Context, rawURL string) ([]byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, c.navTimeout)
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	var pdf []byte
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	}
	if c.userAgent != "" {
		tasks = append(chromedp.Tasks{emulation.SetUserAgentOverride(c.userAgent)}, tasks...)
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}
	return pdf, nil
}

// forwardCancel propagates cancellation from the caller's context into a
// chromedp task context that descends from the browser, not the caller.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
