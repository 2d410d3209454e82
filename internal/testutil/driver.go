package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/shopqa/authcache/internal/browser"
)

// storageState mirrors the shape of playwright's storage state JSON.
type storageState struct {
	Cookies []cookie `json:"cookies"`
	Origins []any    `json:"origins"`
}

type cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FakeDriver is a browser.Driver backed by a FakeSite.
type FakeDriver struct {
	site *FakeSite

	mu             sync.Mutex
	open           int
	restored       int
	failNewContext error
}

// NewFakeDriver returns a driver whose pages talk to site.
func NewFakeDriver(site *FakeSite) *FakeDriver {
	return &FakeDriver{site: site}
}

// FailNextContext makes the next NewContext call fail with err.
func (d *FakeDriver) FailNextContext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNewContext = err
}

// OpenContexts returns the number of contexts not yet closed.
func (d *FakeDriver) OpenContexts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Restored returns how many contexts were created from saved state.
func (d *FakeDriver) Restored() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restored
}

func (d *FakeDriver) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failNewContext; err != nil {
		d.failNewContext = nil
		return nil, err
	}

	c := &fakeContext{driver: d}
	if len(opts.RestoreFrom) > 0 {
		var state storageState
		if err := json.Unmarshal(opts.RestoreFrom, &state); err != nil {
			return nil, fmt.Errorf("invalid storage state: %w", err)
		}
		for _, ck := range state.Cookies {
			if ck.Name == fakeSessionCookie {
				c.token = ck.Value
			}
		}
		d.restored++
	}
	d.open++
	return c, nil
}

func (d *FakeDriver) Close() error {
	return nil
}

type fakeContext struct {
	driver *FakeDriver

	mu     sync.Mutex
	token  string
	closed bool
}

func (c *fakeContext) NewPage() (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("context closed")
	}
	return &fakePage{ctx: c, site: c.driver.site, fields: make(map[string]string)}, nil
}

func (c *fakeContext) SerializeState() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := storageState{Origins: []any{}}
	if c.token != "" {
		state.Cookies = []cookie{{Name: fakeSessionCookie, Value: c.token}}
	}
	return json.Marshal(state)
}

func (c *fakeContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.driver.mu.Lock()
	c.driver.open--
	c.driver.mu.Unlock()
	return nil
}

func (c *fakeContext) sessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *fakeContext) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// fakePage renders two pages: the login form at the login URL and the
// inventory at the authenticated URL, which redirects to the login form
// without a live session.
type fakePage struct {
	ctx  *fakeContext
	site *FakeSite

	url       string
	fields    map[string]string
	pageError string
}

func (p *fakePage) Goto(url string) error {
	p.pageError = ""
	if url == p.site.Site.AuthenticatedURL() && !p.site.Valid(p.ctx.sessionToken()) {
		p.url = p.site.Site.LoginURL()
		p.pageError = NotLoggedInMessage
		return nil
	}
	p.url = url
	return nil
}

func (p *fakePage) Fill(selector, value string) error {
	p.fields[selector] = value
	return nil
}

func (p *fakePage) Click(selector string) error {
	sel := p.site.Site.Selectors
	if selector != sel.Submit || p.url != p.site.Site.LoginURL() {
		return nil
	}

	token, pageError, err := p.site.submit(p.fields[sel.Username], p.fields[sel.Password])
	if err != nil {
		return err
	}
	if pageError != "" {
		p.pageError = pageError
		return nil
	}
	p.ctx.setToken(token)
	p.pageError = ""
	p.url = p.site.Site.AuthenticatedURL()
	return nil
}

func (p *fakePage) WaitForURL(pattern string, timeout time.Duration) error {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	if g.Match(p.url) {
		return nil
	}
	return fmt.Errorf("%w: url %s did not match %s within %v", browser.ErrTimeout, p.url, pattern, timeout)
}

func (p *fakePage) URL() string {
	return p.url
}

func (p *fakePage) IsVisible(selector string) (bool, error) {
	sel := p.site.Site.Selectors
	switch selector {
	case sel.Error:
		return p.pageError != "", nil
	case sel.AuthenticatedMarker:
		return p.url == p.site.Site.AuthenticatedURL() && p.site.Valid(p.ctx.sessionToken()), nil
	default:
		return false, nil
	}
}

func (p *fakePage) TextContent(selector string) (string, error) {
	if selector == p.site.Site.Selectors.Error {
		return p.pageError, nil
	}
	return "", nil
}

func (p *fakePage) Close() error {
	return nil
}
