// Package steps binds the authentication steps of the shop's feature files
// to godog. Each scenario gets its own World; nothing is shared between
// scenarios except the Deps passed in.
package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/gobwas/glob"

	"github.com/shopqa/authcache/internal/auth"
	"github.com/shopqa/authcache/internal/browser"
	"github.com/shopqa/authcache/internal/config"
	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/role"
)

// Deps are the long-lived collaborators shared by all scenarios of a worker.
type Deps struct {
	Config  *config.Config
	Manager *auth.Manager
	Driver  browser.Driver
}

// World is the per-scenario state.
type World struct {
	deps Deps

	session *auth.Session
	context browser.Context
	page    browser.Page
}

// NewWorld returns an empty World.
func NewWorld(deps Deps) *World {
	return &World{deps: deps}
}

// Session returns the session acquired by "I am logged in as", if any.
func (w *World) Session() *auth.Session {
	return w.session
}

// Page returns the page the last step worked on.
func (w *World) Page() browser.Page {
	return w.page
}

// InitializeScenario registers the steps on sc with a fresh World and
// closes its browser contexts after the scenario.
func InitializeScenario(sc *godog.ScenarioContext, deps Deps) *World {
	w := NewWorld(deps)

	sc.Step(`^I am logged in as "([^"]*)"$`, w.iAmLoggedInAs)
	sc.Step(`^I attempt to login as "([^"]*)"$`, w.iAttemptToLoginAs)
	sc.Step(`^I should see the login error containing "([^"]*)"$`, w.iShouldSeeTheLoginErrorContaining)
	sc.Step(`^I should be on the authenticated page$`, w.iShouldBeOnTheAuthenticatedPage)
	sc.Step(`^the session should come from "([^"]*)"$`, w.theSessionShouldComeFrom)

	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		return ctx, w.Close()
	})
	return w
}

// Close releases every browser context the World opened.
func (w *World) Close() error {
	var errs []error
	if w.session != nil {
		errs = append(errs, w.session.Close())
		w.session = nil
	}
	if w.context != nil {
		errs = append(errs, w.context.Close())
		w.context = nil
	}
	w.page = nil
	return errors.Join(errs...)
}

func (w *World) iAmLoggedInAs(ctx context.Context, name string) error {
	r, err := role.Parse(name)
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	s, err := w.deps.Manager.Acquire(ctx, r)
	if err != nil {
		return err
	}
	w.session = s
	w.page = s.Page
	return nil
}

// iAttemptToLoginAs submits the login form once in a clean context without
// waiting for success, so rejected accounts can be asserted on.
func (w *World) iAttemptToLoginAs(ctx context.Context, name string) error {
	r, err := role.Parse(name)
	if err != nil {
		return err
	}
	credentials, err := w.deps.Config.RoleDirectory()
	if err != nil {
		return err
	}
	creds, err := credentials.Lookup(r)
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	bctx, err := w.deps.Driver.NewContext(ctx, browser.ContextOptions{
		Viewport: browser.Viewport{Width: w.deps.Config.Browser.ViewportWidth, Height: w.deps.Config.Browser.ViewportHeight},
	})
	if err != nil {
		return err
	}
	w.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		return err
	}
	w.page = page

	site := w.deps.Config.Site
	if err := page.Goto(site.LoginURL()); err != nil {
		return err
	}
	if err := page.Fill(site.Selectors.Username, creds.Username); err != nil {
		return err
	}
	if err := page.Fill(site.Selectors.Password, creds.Password); err != nil {
		return err
	}
	return page.Click(site.Selectors.Submit)
}

func (w *World) iShouldSeeTheLoginErrorContaining(text string) error {
	if w.page == nil {
		return fmt.Errorf("no page open")
	}
	sel := w.deps.Config.Site.Selectors.Error
	visible, err := w.page.IsVisible(sel)
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("login error %q is not visible on %s", sel, w.page.URL())
	}
	got, err := w.page.TextContent(sel)
	if err != nil {
		return err
	}
	if !strings.Contains(got, text) {
		return fmt.Errorf("login error %q does not contain %q", got, text)
	}
	return nil
}

func (w *World) iShouldBeOnTheAuthenticatedPage() error {
	if w.page == nil {
		return fmt.Errorf("no page open")
	}
	site := w.deps.Config.Site
	pattern, err := glob.Compile(site.AuthenticatedURLPattern, '/')
	if err != nil {
		return err
	}
	if url := w.page.URL(); !pattern.Match(url) {
		return fmt.Errorf("expected URL matching %s, got %s", site.AuthenticatedURLPattern, url)
	}
	visible, err := w.page.IsVisible(site.Selectors.AuthenticatedMarker)
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("%s is not visible", site.Selectors.AuthenticatedMarker)
	}
	return nil
}

func (w *World) theSessionShouldComeFrom(source string) error {
	if w.session == nil {
		return fmt.Errorf("no session acquired")
	}
	if string(w.session.Source) != source {
		return fmt.Errorf("session source = %s, want %s", w.session.Source, source)
	}
	return nil
}
