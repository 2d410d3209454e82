package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/shopqa/authcache/internal/config"
	"github.com/shopqa/authcache/internal/errors"
)

// PlaywrightDriver drives a real browser through playwright-go.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser

	actionTimeout     time.Duration
	navigationTimeout time.Duration
}

// Launch starts playwright and the configured browser engine. Browsers must
// already be installed (playwright install).
func Launch(cfg *config.Config) (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var bt playwright.BrowserType
	switch strings.ToLower(cfg.Browser.Engine) {
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		bt = pw.Chromium
	}

	b, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Browser.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch %s: %w", cfg.Browser.Engine, err)
	}

	return &PlaywrightDriver{
		pw:                pw,
		browser:           b,
		actionTimeout:     cfg.Browser.ActionTimeout(),
		navigationTimeout: cfg.Login.NavigationTimeout(),
	}, nil
}

// NewContext creates a browser context, restoring storage state if given.
func (d *PlaywrightDriver) NewContext(ctx context.Context, opts ContextOptions) (Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := playwright.BrowserNewContextOptions{}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		options.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}

	// playwright restores state from a file, so stage the blob in one.
	if len(opts.RestoreFrom) > 0 {
		f, err := os.CreateTemp("", "authcache-state-*.json")
		if err != nil {
			return nil, fmt.Errorf("failed to stage storage state: %w", err)
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(opts.RestoreFrom); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to stage storage state: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to stage storage state: %w", err)
		}
		options.StorageStatePath = playwright.String(f.Name())
	}

	bctx, err := d.browser.NewContext(options)
	if err != nil {
		return nil, translate(err)
	}
	bctx.SetDefaultTimeout(float64(d.actionTimeout.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(d.navigationTimeout.Milliseconds()))
	return &playwrightContext{bctx: bctx}, nil
}

// Close shuts down the browser and the playwright driver process.
func (d *PlaywrightDriver) Close() error {
	return errors.Join(d.browser.Close(), d.pw.Stop())
}

type playwrightContext struct {
	bctx playwright.BrowserContext
}

func (c *playwrightContext) NewPage() (Page, error) {
	p, err := c.bctx.NewPage()
	if err != nil {
		return nil, translate(err)
	}
	return &playwrightPage{page: p}, nil
}

func (c *playwrightContext) SerializeState() ([]byte, error) {
	f, err := os.CreateTemp("", "authcache-state-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create state file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if _, err := c.bctx.StorageState(path); err != nil {
		return nil, translate(err)
	}
	return os.ReadFile(path)
}

func (c *playwrightContext) Close() error {
	return c.bctx.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url)
	return translate(err)
}

func (p *playwrightPage) Fill(selector, value string) error {
	return translate(p.page.Locator(selector).Fill(value))
}

func (p *playwrightPage) Click(selector string) error {
	return translate(p.page.Locator(selector).Click())
}

func (p *playwrightPage) WaitForURL(pattern string, timeout time.Duration) error {
	return translate(p.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}))
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) IsVisible(selector string) (bool, error) {
	visible, err := p.page.Locator(selector).IsVisible()
	return visible, translate(err)
}

func (p *playwrightPage) TextContent(selector string) (string, error) {
	text, err := p.page.Locator(selector).First().TextContent()
	return strings.TrimSpace(text), translate(err)
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

// translate maps playwright failures onto the package sentinels so callers
// can classify them without importing playwright.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case isNetworkError(err):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	default:
		return err
	}
}

func isNetworkError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"net::ERR_", "NS_ERROR_", "ECONNREFUSED", "ECONNRESET", "Could not connect"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
