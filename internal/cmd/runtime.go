package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopqa/authcache/internal/auth"
	"github.com/shopqa/authcache/internal/browser"
	"github.com/shopqa/authcache/internal/config"
	"github.com/shopqa/authcache/internal/lockmetrics"
	"github.com/shopqa/authcache/internal/logging"
	"github.com/shopqa/authcache/internal/role"
	"github.com/shopqa/authcache/internal/session"
)

// newDriver starts the browser used by commands that log in. Tests swap it
// for a fake.
var newDriver = func(cfg *config.Config) (browser.Driver, error) {
	return browser.Launch(cfg)
}

// runtime bundles what a command needs for one invocation.
type runtime struct {
	cfg            *config.Config
	authDir        string
	diagnosticsDir string
	logger         *logging.Logger
	recorder       *lockmetrics.Recorder
	store          *session.Store
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	rt := &runtime{
		cfg:            cfg,
		authDir:        cfg.Paths.ResolveAuthDir(cwd),
		diagnosticsDir: cfg.Paths.ResolveDiagnosticsDir(cwd),
		logger:         logging.NopLogger(),
	}
	rt.store = session.NewStore(rt.authDir)

	if cfg.Logging.Enabled {
		logger, err := logging.NewLogger(rt.diagnosticsDir, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		rt.logger = logger
	}
	if cfg.Metrics.Enabled {
		rt.recorder = lockmetrics.NewRecorder(rt.diagnosticsDir, rt.logger)
	}
	return rt, nil
}

// manager wires an auth.Manager; driver may be nil for commands that do not
// log in.
func (rt *runtime) manager(driver browser.Driver) (*auth.Manager, error) {
	return auth.NewManager(auth.Deps{
		Config:   rt.cfg,
		Driver:   driver,
		Store:    rt.store,
		Recorder: rt.recorder,
		Logger:   rt.logger,
	})
}

func (rt *runtime) metricsPath() string {
	return filepath.Join(rt.diagnosticsDir, lockmetrics.FileName)
}

func (rt *runtime) logPath() string {
	return filepath.Join(rt.diagnosticsDir, logging.LogFileName)
}

// close flushes lock metrics and closes the log file.
func (rt *runtime) close() error {
	var flushErr error
	if rt.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		flushErr = rt.recorder.Flush(ctx)
		cancel()
	}
	if err := rt.logger.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}

// parseRoles converts role arguments; no arguments means every configured
// role.
func parseRoles(cfg *config.Config, args []string) ([]role.Role, error) {
	if len(args) == 0 {
		dir, err := cfg.RoleDirectory()
		if err != nil {
			return nil, err
		}
		return dir.Roles(), nil
	}
	roles := make([]role.Role, 0, len(args))
	for _, arg := range args {
		r, err := role.Parse(arg)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
