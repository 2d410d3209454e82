package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/filelock"
	"github.com/shopqa/authcache/internal/role"
)

// WarmResult is the outcome of warming one role.
type WarmResult struct {
	Role    role.Role
	Source  Source
	Elapsed time.Duration
	Err     error
}

// WarmUp acquires and immediately closes a session for every role, at most
// limit at a time (limit <= 0 means unlimited). Results are returned in the
// order of roles. The returned error joins the failures of all roles.
func (m *Manager) WarmUp(ctx context.Context, roles []role.Role, limit int) ([]WarmResult, error) {
	results := make([]WarmResult, len(roles))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	var mu sync.Mutex
	var errs []error
	for i, r := range roles {
		g.Go(func() error {
			results[i] = WarmResult{Role: r}
			s, err := m.Acquire(gctx, r)
			if err != nil {
				results[i].Err = err
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				// One role failing must not cancel the others.
				return nil
			}
			results[i].Source = s.Source
			results[i].Elapsed = s.Elapsed
			if err := s.Close(); err != nil {
				m.logger.WithRole(string(r)).Warn("failed to close warmed session", "error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// Invalidate deletes the stored session of r under its lock, so it never
// races a worker that is publishing one.
func (m *Manager) Invalidate(ctx context.Context, r role.Role) error {
	h, err := filelock.Acquire(ctx, m.store.Path(r), m.lockOptions(r))
	if err != nil {
		return err
	}
	logger := m.logger.WithRole(string(r))
	defer m.release(h, logger)

	if err := m.store.Delete(r); err != nil {
		return err
	}
	logger.Info("stored session invalidated")
	return nil
}

// RoleStatus describes the stored session and lock of one role.
type RoleStatus struct {
	Role     role.Role
	Cached   bool
	CachedAt time.Time
	Size     int64
	Lock     *filelock.Status
}

// Status reports the cache and lock state of every role, in declaration
// order. It takes no locks.
func (m *Manager) Status() ([]RoleStatus, error) {
	infos, err := m.store.List()
	if err != nil {
		return nil, err
	}
	cached := make(map[role.Role]int, len(infos))
	for i, info := range infos {
		cached[info.Role] = i
	}

	statuses := make([]RoleStatus, 0, len(role.All()))
	for _, r := range role.All() {
		st := RoleStatus{Role: r}
		if i, ok := cached[r]; ok {
			st.Cached = true
			st.CachedAt = infos[i].ModTime
			st.Size = infos[i].Size
		}
		lock, err := filelock.Inspect(m.store.Path(r), m.cfg.Lock.Stale())
		if err != nil {
			return nil, err
		}
		st.Lock = lock
		statuses = append(statuses, st)
	}
	return statuses, nil
}
