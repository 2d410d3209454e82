// Package login performs the UI login for a role and publishes the resulting
// browser state to the session store.
package login

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/shopqa/authcache/internal/browser"
	"github.com/shopqa/authcache/internal/config"
	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/logging"
	"github.com/shopqa/authcache/internal/role"
	"github.com/shopqa/authcache/internal/session"
)

// Executor logs roles in through the site's login form. It is safe for
// concurrent use; each Login call works in the browser context it is given.
type Executor struct {
	site        config.SiteConfig
	credentials role.Directory
	store       *session.Store
	logger      *logging.Logger

	maxAttempts int
	backoff     time.Duration
	navTimeout  time.Duration
}

// NewExecutor creates an Executor from the site and login configuration.
func NewExecutor(cfg *config.Config, credentials role.Directory, store *session.Store, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{
		site:        cfg.Site,
		credentials: credentials,
		store:       store,
		logger:      logger.WithComponent("login"),
		maxAttempts: max(cfg.Login.MaxRetries, 1),
		backoff:     cfg.Login.Backoff(),
		navTimeout:  cfg.Login.NavigationTimeout(),
	}
}

// Login authenticates bctx as r and publishes its state as r's session.
//
// Failures the site reports on the page (refused or locked-out accounts)
// return a *errors.LoginRejectedError at once. Other failures are retried
// with a fixed delay; when attempts run out a *errors.LoginFailedError
// wrapping the last failure is returned. A failed publish returns a
// *errors.SessionError and is not retried.
func (e *Executor) Login(ctx context.Context, bctx browser.Context, r role.Role) error {
	creds, err := e.credentials.Lookup(r)
	if err != nil {
		return err
	}

	logger := e.logger.WithRole(string(r))
	start := time.Now()
	logger.Info("starting login", "username", creds.Username)

	attempts := 0
	err = retry.Do(
		func() error {
			attempts++
			return e.attempt(bctx, creds, r, logger)
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.maxAttempts)),
		retry.Delay(e.backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, errors.ErrLoginRejected)
		}),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= e.maxAttempts {
				return
			}
			logger.Warn("login attempt failed, retrying",
				"attempt", n+1,
				"max_attempts", e.maxAttempts,
				"retry_in_ms", e.backoff.Milliseconds(),
				"error", err.Error(),
			)
		}),
	)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrLoginRejected):
			logger.Error("login rejected", "error", err.Error())
			return err
		case ctx.Err() != nil:
			return errors.Wrapf(ctx.Err(), "login for %s interrupted after %d attempt(s)", r, attempts)
		default:
			failed := errors.NewLoginFailedError(string(r), attempts, err)
			logger.Error("login failed", "attempts", attempts, "error", err.Error())
			return failed
		}
	}

	if err := e.publish(bctx, r, logger); err != nil {
		return err
	}

	logger.Info(logging.FreshLoginMessage,
		"attempts", attempts,
		"duration_ms", time.Since(start).Milliseconds(),
		"path", e.store.Path(r),
	)
	return nil
}

// attempt runs the login form once in a fresh page.
func (e *Executor) attempt(bctx browser.Context, creds role.Credentials, r role.Role, logger *logging.Logger) error {
	page, err := bctx.NewPage()
	if err != nil {
		return errors.Wrap(err, "failed to open page")
	}
	defer func() { _ = page.Close() }()

	sel := e.site.Selectors

	phase := time.Now()
	if err := page.Goto(e.site.LoginURL()); err != nil {
		return errors.Wrap(err, "failed to open login page")
	}
	logger.WithPhase("navigate").Debug("login page loaded", "duration_ms", time.Since(phase).Milliseconds())

	phase = time.Now()
	if err := page.Fill(sel.Username, creds.Username); err != nil {
		return errors.Wrap(err, "failed to fill username")
	}
	if err := page.Fill(sel.Password, creds.Password); err != nil {
		return errors.Wrap(err, "failed to fill password")
	}
	if err := page.Click(sel.Submit); err != nil {
		return errors.Wrap(err, "failed to submit login form")
	}
	logger.WithPhase("submit").Debug("login form submitted", "duration_ms", time.Since(phase).Milliseconds())

	phase = time.Now()
	waitErr := page.WaitForURL(e.site.AuthenticatedURLPattern, e.navTimeout)
	if waitErr == nil {
		logger.WithPhase("verify").Debug("authenticated page reached", "duration_ms", time.Since(phase).Milliseconds())
		return nil
	}

	// The site rejected the credentials if it shows its error indicator.
	if visible, err := page.IsVisible(sel.Error); err == nil && visible {
		text, _ := page.TextContent(sel.Error)
		return retry.Unrecoverable(errors.NewLoginRejectedError(string(r), creds.Username, text))
	}
	return errors.Wrap(waitErr, "authenticated page not reached")
}

func (e *Executor) publish(bctx browser.Context, r role.Role, logger *logging.Logger) error {
	start := time.Now()
	state, err := bctx.SerializeState()
	if err != nil {
		return errors.NewSessionError("failed to capture browser state", err).WithRole(string(r))
	}
	if err := e.store.Write(r, state); err != nil {
		return err
	}
	logger.WithPhase("publish").Debug("session published",
		"bytes", len(state),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
