// Package internal contains integration tests that run several workers
// against one auth directory and check the diagnostics they leave behind.
package internal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopqa/authcache/internal/auth"
	"github.com/shopqa/authcache/internal/lockmetrics"
	"github.com/shopqa/authcache/internal/logging"
	"github.com/shopqa/authcache/internal/role"
	"github.com/shopqa/authcache/internal/session"
	"github.com/shopqa/authcache/internal/testutil"
)

// worker mirrors what one test process wires up: its own driver, logger,
// recorder and manager over the shared directories.
type worker struct {
	manager  *auth.Manager
	recorder *lockmetrics.Recorder
	logger   *logging.Logger
}

// TestWorkersShareSessionsAndDiagnostics runs several workers that each need
// two roles, then checks that every role was logged in once, the lock metrics
// of all workers were merged, and the shared log shows no duplicate logins.
func TestWorkersShareSessionsAndDiagnostics(t *testing.T) {
	cfg := testutil.TestConfig(t)
	cfg.Logging.Level = "info"
	site := testutil.NewFakeSite(cfg.Site, testutil.Directory(t, cfg))
	site.LoginDelay = 20 * time.Millisecond

	const workers = 5
	roles := []role.Role{role.Standard, role.Problem}

	ws := make([]*worker, workers)
	for i := range ws {
		logger, err := logging.NewLogger(cfg.Paths.DiagnosticsDir, cfg.Logging.Level)
		require.NoError(t, err)
		rec := lockmetrics.NewRecorder(cfg.Paths.DiagnosticsDir, logger)
		m, err := auth.NewManager(auth.Deps{
			Config:   cfg,
			Driver:   testutil.NewFakeDriver(site),
			Store:    session.NewStore(cfg.Paths.AuthDir),
			Recorder: rec,
			Logger:   logger,
		})
		require.NoError(t, err)
		ws[i] = &worker{manager: m, recorder: rec, logger: logger}
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers*len(roles))
	for _, w := range ws {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, r := range roles {
				s, err := w.manager.Acquire(context.Background(), r)
				if err != nil {
					errs <- err
					continue
				}
				_ = s.Close()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("acquire failed: %v", err)
	}

	for _, r := range roles {
		creds, err := testutil.Directory(t, cfg).Lookup(r)
		require.NoError(t, err)
		assert.Equal(t, 1, site.LoginCount(creds.Username), "role %s should be logged in once", r)
	}

	// Flush every worker's metrics concurrently, as parallel processes do at exit.
	recorded := 0
	for _, w := range ws {
		recorded += len(w.recorder.Samples())
	}
	var fwg sync.WaitGroup
	for _, w := range ws {
		fwg.Add(1)
		go func() {
			defer fwg.Done()
			assert.NoError(t, w.recorder.Flush(context.Background()))
		}()
	}
	fwg.Wait()
	for _, w := range ws {
		require.NoError(t, w.logger.Close())
	}

	samples, err := lockmetrics.Load(filepath.Join(cfg.Paths.DiagnosticsDir, lockmetrics.FileName))
	require.NoError(t, err)
	assert.Len(t, samples, recorded, "flushes must not drop each other's samples")

	summary := lockmetrics.Summarize(samples)
	assert.Zero(t, summary.Failures)
	assert.Equal(t, summary.Acquisitions, summary.Releases)
	assert.GreaterOrEqual(t, summary.Acquisitions, len(roles), "each role needs at least one locked login")

	entries, err := logging.AggregateLogs(filepath.Join(cfg.Paths.DiagnosticsDir, logging.LogFileName))
	require.NoError(t, err)
	fresh := logging.FilterLogs(entries, logging.LogFilter{MessageContains: logging.FreshLoginMessage})
	assert.Len(t, fresh, len(roles))
	assert.Empty(t, logging.DetectDuplicateLogins(entries, time.Minute))
}
