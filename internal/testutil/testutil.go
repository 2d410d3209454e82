// Package testutil provides a fake shop site, a fake browser driver and
// configuration helpers for authcache tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/shopqa/authcache/internal/config"
	"github.com/shopqa/authcache/internal/role"
)

// TestConfig returns the default configuration with its directories under a
// fresh temp dir and timings shortened for tests.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.AuthDir = filepath.Join(dir, "auth")
	cfg.Paths.DiagnosticsDir = filepath.Join(dir, "diagnostics")
	cfg.Lock.Retries = 200
	cfg.Lock.MinTimeoutMs = 5
	cfg.Lock.MaxTimeoutMs = 50
	cfg.Lock.StaleMs = 5000
	cfg.Login.BackoffMs = 1
	cfg.Login.NavigationTimeoutMs = 1000
	cfg.Logging.Level = "debug"

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("test config is invalid: %v", config.ValidationErrors(errs))
	}
	return cfg
}

// Directory returns the role directory of cfg, failing the test on error.
func Directory(t *testing.T, cfg *config.Config) role.Directory {
	t.Helper()

	dir, err := cfg.RoleDirectory()
	if err != nil {
		t.Fatalf("invalid roles: %v", err)
	}
	return dir
}
