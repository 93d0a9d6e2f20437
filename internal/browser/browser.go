// Package browser drives a headless Chrome instance for pages that only
// render their content with JavaScript.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

const navigateTimeout = 30 * time.Second

// ErrNotStarted is returned when a page is requested before Start.
var ErrNotStarted = errors.New("browser not started")

// Config holds browser configuration.
type Config struct {
	Headless   bool
	ChromePath string
	Logger     *slog.Logger
}

// Controller manages a headless Chrome/Chromium instance.
type Controller struct {
	cfg Config

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New creates a browser controller. Nothing is launched until Start.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{cfg: cfg}
}

// Start launches Chrome/Chromium. The browser lives until Stop, independent
// of ctx.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 900),
	)
	if c.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	c.allocCancel = allocCancel
	c.browserCtx = browserCtx
	c.browserCancel = browserCancel
	c.cfg.Logger.Info("headless browser started")
	return nil
}

// Stop shuts Chrome down. It is safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.browserCtx, c.browserCancel, c.allocCancel = nil, nil, nil
}

// NavigateAndExtract opens url in a fresh tab and returns the visible body
// text, one non-blank line per line.
func (c *Controller) NavigateAndExtract(ctx context.Context, url string) (string, error) {
	c.mu.Lock()
	parent := c.browserCtx
	c.mu.Unlock()
	if parent == nil {
		return "", ErrNotStarted
	}

	tabCtx, cancel := chromedp.NewContext(parent)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, navigateTimeout)
	defer cancelTimeout()
	// Tie the tab to the caller as well as to the browser.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var body string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Text("body", &body, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("navigate failed: %w", err)
	}
	return CleanText(body), nil
}

// CleanText trims every line and drops blank ones.
func CleanText(text string) string {
	lines := strings.Split(text, "\n")
	clean := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			clean = append(clean, l)
		}
	}
	return strings.Join(clean, "\n")
}
