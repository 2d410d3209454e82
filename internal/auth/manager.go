// Package auth hands out authenticated browser sessions per role, reusing a
// stored session when it still works and otherwise logging in exactly once
// across all workers sharing the auth directory.
package auth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gobwas/glob"

	"github.com/shopqa/authcache/internal/browser"
	"github.com/shopqa/authcache/internal/config"
	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/filelock"
	"github.com/shopqa/authcache/internal/lockmetrics"
	"github.com/shopqa/authcache/internal/logging"
	"github.com/shopqa/authcache/internal/login"
	"github.com/shopqa/authcache/internal/role"
	"github.com/shopqa/authcache/internal/session"
)

// Manager is the per-process entry point. It holds no mutable state of its
// own and is safe for concurrent use; each Acquire works in its own browser
// context.
type Manager struct {
	cfg      *config.Config
	driver   browser.Driver
	store    *session.Store
	executor *login.Executor
	recorder *lockmetrics.Recorder
	logger   *logging.Logger

	authenticated glob.Glob
}

// Deps are the collaborators of a Manager. Recorder and Logger are optional.
// Driver may be nil for a Manager that only inspects or invalidates sessions.
type Deps struct {
	Config   *config.Config
	Driver   browser.Driver
	Store    *session.Store
	Recorder *lockmetrics.Recorder
	Logger   *logging.Logger
}

// NewManager validates the role directory and URL pattern of deps.Config
// and wires a Manager. A nil Store uses the configured auth directory
// relative to the working directory.
func NewManager(deps Deps) (*Manager, error) {
	if deps.Config == nil {
		return nil, errors.NewValidationError("config is required").WithField("deps.config")
	}
	credentials, err := deps.Config.RoleDirectory()
	if err != nil {
		return nil, err
	}
	pattern, err := glob.Compile(deps.Config.Site.AuthenticatedURLPattern, '/')
	if err != nil {
		return nil, errors.NewValidationError("invalid glob").
			WithField("site.authenticated_url_pattern").
			WithValue(deps.Config.Site.AuthenticatedURLPattern).
			WithCause(err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	store := deps.Store
	if store == nil {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		store = session.NewStore(deps.Config.Paths.ResolveAuthDir(cwd))
	}

	return &Manager{
		cfg:           deps.Config,
		driver:        deps.Driver,
		store:         store,
		executor:      login.NewExecutor(deps.Config, credentials, store, logger),
		recorder:      deps.Recorder,
		logger:        logger.WithComponent("auth"),
		authenticated: pattern,
	}, nil
}

// Store returns the session store the Manager publishes to.
func (m *Manager) Store() *session.Store {
	return m.store
}

// Acquire returns an authenticated session for r.
//
// A stored session is used if it still validates. Otherwise the role's lock
// is taken, the store re-checked (another worker may have logged in while
// this one waited) and, only if still needed, the UI login performed and
// published before the lock is released. Lock failures are returned without
// attempting a login. A failed login leaves any previously stored session in
// place.
func (m *Manager) Acquire(ctx context.Context, r role.Role) (*Session, error) {
	if m.driver == nil {
		return nil, annotate(errors.NewValidationError("no browser driver configured").WithField("deps.driver"), r)
	}
	if err := ctx.Err(); err != nil {
		return nil, annotate(err, r)
	}

	start := time.Now()
	logger := m.logger.WithRole(string(r))

	// CHECK_CACHE
	s, seen := m.fromCache(ctx, r, logger.WithPhase("check"))
	if s != nil {
		s.Source = SourceCache
		s.Elapsed = time.Since(start)
		logger.Info("session reused", "source", s.Source, "duration_ms", s.Elapsed.Milliseconds())
		return s, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, annotate(err, r)
	}

	// ACQUIRE_LOCK
	logger.Info("starting fresh login", "reason", missReason(seen))
	h, err := filelock.Acquire(ctx, m.store.Path(r), m.lockOptions(r))
	if err != nil {
		logger.Error("could not lock session", "error", err.Error())
		return nil, annotate(err, r)
	}
	defer m.release(h, logger)

	// RECHECK_CACHE. Any stored record is validated again: a session
	// republished within the filesystem's mtime granularity looks unchanged.
	if s, _ := m.fromCache(ctx, r, logger.WithPhase("recheck")); s != nil {
		s.Source = SourceCacheAfterWait
		s.Elapsed = time.Since(start)
		logger.Info("session created by another worker while waiting",
			"source", s.Source,
			"duration_ms", s.Elapsed.Milliseconds(),
		)
		return s, nil
	}

	// LOGIN + PUBLISH
	s, err = m.login(ctx, r, logger)
	if err != nil {
		return nil, annotate(err, r)
	}
	if h.Compromised() {
		logger.Warn("lock was taken over during login; session may have been published twice")
	}
	s.Elapsed = time.Since(start)
	logger.Info("session ready", "source", s.Source, "duration_ms", s.Elapsed.Milliseconds())
	return s, nil
}

// login runs the UI login in a fresh context and opens the landing page.
func (m *Manager) login(ctx context.Context, r role.Role, logger *logging.Logger) (*Session, error) {
	bctx, err := m.driver.NewContext(ctx, browser.ContextOptions{Viewport: m.viewport()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open browser context")
	}
	if err := m.executor.Login(ctx, bctx, r); err != nil {
		_ = bctx.Close()
		return nil, err
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errors.Wrap(err, "failed to open page")
	}
	if err := page.Goto(m.cfg.Site.AuthenticatedURL()); err != nil {
		_ = page.Close()
		_ = bctx.Close()
		return nil, errors.Wrap(err, "failed to open authenticated page")
	}
	logger.Debug("landing page opened", "url", page.URL())
	return &Session{Role: r, Source: SourceLogin, Context: bctx, Page: page}, nil
}

// fromCache restores and validates the stored session. Any problem is a
// miss. It returns the modification time of the record it looked at, zero if
// there was none.
func (m *Manager) fromCache(ctx context.Context, r role.Role, logger *logging.Logger) (*Session, time.Time) {
	rec, err := m.store.Read(r)
	if err != nil {
		if errors.Is(err, errors.ErrSessionNotFound) {
			logger.Debug("no stored session")
		} else {
			logger.Warn("stored session unreadable", "error", err.Error())
		}
		return nil, time.Time{}
	}

	start := time.Now()
	s, err := m.validate(ctx, r, rec)
	if err != nil {
		logger.Info("stored session rejected",
			"error", err.Error(),
			"age_ms", rec.Age().Milliseconds(),
		)
		return nil, rec.ModTime
	}
	logger.Debug("stored session valid", "duration_ms", time.Since(start).Milliseconds())
	return s, rec.ModTime
}

// validate restores rec into a new context and checks that the
// authenticated page stays reachable. Failed contexts are closed.
func (m *Manager) validate(ctx context.Context, r role.Role, rec *session.Record) (*Session, error) {
	invalid := func(reason string, cause error) error {
		return errors.NewSessionValidationError(string(r), reason, cause)
	}

	bctx, err := m.driver.NewContext(ctx, browser.ContextOptions{RestoreFrom: rec.Data, Viewport: m.viewport()})
	if err != nil {
		return nil, invalid("state could not be restored", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, invalid("page could not be opened", err)
	}

	fail := func(reason string, cause error) (*Session, error) {
		_ = page.Close()
		_ = bctx.Close()
		return nil, invalid(reason, cause)
	}

	if err := page.Goto(m.cfg.Site.AuthenticatedURL()); err != nil {
		return fail("authenticated page failed to load", err)
	}
	if url := page.URL(); !m.authenticated.Match(url) {
		return fail(fmt.Sprintf("redirected to %s", url), nil)
	}
	visible, err := page.IsVisible(m.cfg.Site.Selectors.AuthenticatedMarker)
	if err != nil {
		return fail("authenticated marker check failed", err)
	}
	if !visible {
		return fail("authenticated marker not visible", nil)
	}

	return &Session{Role: r, Context: bctx, Page: page}, nil
}

func (m *Manager) lockOptions(r role.Role) filelock.Options {
	opts := filelock.Options{
		Retries:    m.cfg.Lock.Retries,
		MinTimeout: m.cfg.Lock.MinTimeout(),
		MaxTimeout: m.cfg.Lock.MaxTimeout(),
		Stale:      m.cfg.Lock.Stale(),
		Update:     m.cfg.Lock.Update(),
		Label:      string(r),
		Logger:     m.logger,
	}
	if m.recorder != nil {
		opts.Observer = m.recorder.Observe
	}
	return opts
}

func (m *Manager) viewport() browser.Viewport {
	return browser.Viewport{Width: m.cfg.Browser.ViewportWidth, Height: m.cfg.Browser.ViewportHeight}
}

// release gives up h. The outcome of the caller is already decided, so a
// failure is only logged.
func (m *Manager) release(h *filelock.Handle, logger *logging.Logger) {
	if err := h.Release(); err != nil {
		logger.Warn("session lock release failed", "error", err.Error())
	}
}

func missReason(seen time.Time) string {
	if seen.IsZero() {
		return "missing"
	}
	return "invalid"
}

// annotate attaches role, pid and time to errors that do not carry them.
func annotate(err error, r role.Role) error {
	var lockErr *errors.LockAcquisitionError
	var rejected *errors.LoginRejectedError
	var failed *errors.LoginFailedError
	if errors.As(err, &lockErr) || errors.As(err, &rejected) || errors.As(err, &failed) {
		return err
	}
	return errors.Wrapf(err, "acquire session [role=%s, pid=%d, at=%s]",
		r, os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano))
}
