package filelock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/logging"
)

// MarkerPath returns the lock marker path for a resource.
func MarkerPath(resourcePath string) string {
	return resourcePath + MarkerSuffix
}

// Handle is a held lock. Release must be called exactly once per critical
// section, typically via defer; additional calls are no-ops.
type Handle struct {
	Resource   string
	MarkerPath string
	Holder     Holder
	Stale      time.Duration

	opts   Options
	logger *logging.Logger

	mu          sync.Mutex
	released    bool
	compromised bool
	stop        chan struct{}
	done        chan struct{}
}

// Acquire takes the cross-process lock for resourcePath. It creates
// resourcePath+".lock" exclusively, retrying with exponential backoff while
// another live process holds it, and reclaiming markers older than
// opts.Stale. The wait aborts when ctx is done.
//
// On exhaustion it returns an *errors.LockAcquisitionError.
func Acquire(ctx context.Context, resourcePath string, opts Options) (*Handle, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.WithComponent("filelock")
	if opts.Label != "" {
		logger = logger.WithRole(opts.Label)
	}

	start := time.Now()
	h, err := acquire(ctx, resourcePath, opts, logger, start)
	emit(opts, Event{
		Operation: OpAcquire,
		Resource:  resourcePath,
		Label:     opts.Label,
		PID:       os.Getpid(),
		Start:     start,
		Duration:  time.Since(start),
		Success:   err == nil,
		Err:       err,
	})
	return h, err
}

func acquire(ctx context.Context, resourcePath string, opts Options, logger *logging.Logger, start time.Time) (*Handle, error) {
	markerPath := MarkerPath(resourcePath)
	if err := os.MkdirAll(filepath.Dir(markerPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	holder := Holder{
		Token:    uuid.NewString(),
		PID:      os.Getpid(),
		Hostname: hostname,
		Label:    opts.Label,
	}

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     opts.MinTimeout,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         opts.MaxTimeout,
	}
	bo.Reset()

	watcher := watchMarker(markerPath)
	defer watcher.Close()

	attempts := 0
	for {
		attempts++
		held, current, err := attempt(markerPath, &holder, opts.Stale, logger)
		if err != nil {
			return nil, err
		}
		if held {
			waited := time.Since(start)
			logger.Debug("lock acquired",
				"resource", resourcePath,
				"attempts", attempts,
				"wait_ms", waited.Milliseconds(),
			)
			return newHandle(resourcePath, markerPath, holder, opts, logger), nil
		}

		if attempts > opts.Retries {
			lockErr := errors.NewLockAcquisitionError(resourcePath, attempts, time.Since(start)).
				WithRole(opts.Label)
			if current != nil {
				lockErr = lockErr.WithHolder(current.PID, current.Hostname)
			}
			logger.Warn("lock acquisition failed",
				"resource", resourcePath,
				"attempts", attempts,
				"wait_ms", time.Since(start).Milliseconds(),
			)
			return nil, lockErr
		}

		delay := bo.NextBackOff()
		logger.Debug("lock contended",
			"resource", resourcePath,
			"attempt", attempts,
			"retry_in_ms", delay.Milliseconds(),
		)
		if err := watcher.wait(ctx, delay); err != nil {
			return nil, errors.Wrapf(err, "waiting for lock on %s", resourcePath)
		}
	}
}

// attempt makes one acquisition attempt. A marker that vanishes between the
// failed create and the read, or one reclaimed as stale, gets one immediate
// second create. It returns the observed holder when the lock stays taken.
func attempt(markerPath string, holder *Holder, stale time.Duration, logger *logging.Logger) (bool, *Holder, error) {
	for try := 0; try < 2; try++ {
		holder.AcquiredAt = time.Now()
		ok, err := tryCreate(markerPath, *holder)
		if err != nil || ok {
			return ok, nil, err
		}

		current, info, err := readMarker(markerPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil && info == nil {
			return false, nil, fmt.Errorf("failed to inspect lock marker: %w", err)
		}

		age := time.Since(info.ModTime())
		if age <= stale {
			return false, current, nil
		}

		reclaimed, rerr := reclaim(markerPath, current, info, stale)
		if rerr != nil {
			return false, current, rerr
		}
		if !reclaimed {
			return false, current, nil
		}
		args := []any{"marker", markerPath, "age_ms", age.Milliseconds()}
		if current != nil {
			args = append(args, "stale_pid", current.PID, "stale_host", current.Hostname)
		}
		logger.Warn("stale lock reclaimed", args...)
	}
	return false, nil, nil
}

// tryCreate writes holder to markerPath only if the marker does not exist.
func tryCreate(markerPath string, holder Holder) (bool, error) {
	data, err := json.Marshal(holder)
	if err != nil {
		return false, fmt.Errorf("failed to marshal lock holder: %w", err)
	}

	f, err := os.OpenFile(markerPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock marker: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(markerPath)
		return false, fmt.Errorf("failed to write lock marker: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(markerPath)
		return false, fmt.Errorf("failed to close lock marker: %w", err)
	}
	return true, nil
}

// readMarker stats and parses a marker. A marker whose content cannot be
// parsed (for instance one caught between create and write) yields a nil
// holder together with its FileInfo and the parse error.
func readMarker(markerPath string) (*Holder, os.FileInfo, error) {
	info, err := os.Stat(markerPath)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(markerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, err
		}
		return nil, info, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, info, fmt.Errorf("failed to parse lock marker: %w", err)
	}
	return &h, info, nil
}

// reclaim removes a stale marker. The removal happens under an exclusive
// guard file and only if the marker still belongs to the holder observed as
// stale, so concurrent reclaimers cannot delete a freshly created marker.
//
// A holder whose heartbeat stalls for longer than the stale threshold is
// indistinguishable from a dead one and will lose its lock here.
func reclaim(markerPath string, observed *Holder, observedInfo os.FileInfo, stale time.Duration) (bool, error) {
	guardPath := markerPath + reclaimSuffix

	guard, err := os.OpenFile(guardPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return false, fmt.Errorf("failed to create reclaim guard: %w", err)
		}
		// A guard left behind by a crashed reclaimer is itself stale.
		if info, serr := os.Stat(guardPath); serr == nil && time.Since(info.ModTime()) > stale {
			_ = os.Remove(guardPath)
		}
		return false, nil
	}
	_ = guard.Close()
	defer func() { _ = os.Remove(guardPath) }()

	current, info, err := readMarker(markerPath)
	if os.IsNotExist(err) {
		return true, nil
	}
	if info == nil {
		return false, fmt.Errorf("failed to re-read lock marker: %w", err)
	}
	if time.Since(info.ModTime()) <= stale {
		return false, nil
	}
	if !sameHolder(observed, observedInfo, current, info) {
		return false, nil
	}

	if err := os.Remove(markerPath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove stale lock marker: %w", err)
	}
	return true, nil
}

func sameHolder(a *Holder, aInfo os.FileInfo, b *Holder, bInfo os.FileInfo) bool {
	if a != nil && b != nil {
		return a.Token == b.Token
	}
	if a == nil && b == nil {
		return aInfo.ModTime().Equal(bInfo.ModTime()) && aInfo.Size() == bInfo.Size()
	}
	return false
}

func newHandle(resourcePath, markerPath string, holder Holder, opts Options, logger *logging.Logger) *Handle {
	h := &Handle{
		Resource:   resourcePath,
		MarkerPath: markerPath,
		Holder:     holder,
		Stale:      opts.Stale,
		opts:       opts,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go h.heartbeat(opts.Update)
	return h
}

// Token returns the unique holder token written into the marker.
func (h *Handle) Token() string {
	return h.Holder.Token
}

// Compromised reports whether the heartbeat found the marker missing or
// owned by someone else while this handle was held.
func (h *Handle) Compromised() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.compromised
}

// heartbeat keeps the marker's mtime fresh so other processes do not treat
// a long critical section as abandoned.
func (h *Handle) heartbeat(interval time.Duration) {
	defer close(h.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			if err := h.touch(); err != nil {
				h.mu.Lock()
				h.compromised = true
				h.mu.Unlock()
				h.logger.Warn("lock compromised",
					"resource", h.Resource,
					"error", err.Error(),
				)
				return
			}
		}
	}
}

func (h *Handle) touch() error {
	current, _, err := readMarker(h.MarkerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrLockNotHeld, "marker removed")
		}
		return err
	}
	if current.Token != h.Holder.Token {
		return errors.Wrapf(errors.ErrLockNotHeld, "marker taken over by pid %d", current.PID)
	}
	now := time.Now()
	return os.Chtimes(h.MarkerPath, now, now)
}

// Release stops the heartbeat and removes the marker if it still carries this
// handle's token. It returns an error wrapping errors.ErrLockNotHeld if the
// marker was removed or taken over by another holder. Calls after the first
// are no-ops returning nil.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.mu.Unlock()

	close(h.stop)
	<-h.done

	start := time.Now()
	err := h.remove()
	emit(h.opts, Event{
		Operation: OpRelease,
		Resource:  h.Resource,
		Label:     h.opts.Label,
		PID:       os.Getpid(),
		Start:     start,
		Duration:  time.Since(start),
		Success:   err == nil,
		Err:       err,
	})

	if err != nil {
		h.logger.Warn("lock release failed", "resource", h.Resource, "error", err.Error())
	} else {
		h.logger.Debug("lock released",
			"resource", h.Resource,
			"held_ms", time.Since(h.Holder.AcquiredAt).Milliseconds(),
		)
	}
	return err
}

func (h *Handle) remove() error {
	current, _, err := readMarker(h.MarkerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(errors.ErrLockNotHeld, "marker %s already removed", h.MarkerPath)
		}
		return fmt.Errorf("failed to read lock marker: %w", err)
	}
	if current.Token != h.Holder.Token {
		return errors.Wrapf(errors.ErrLockNotHeld, "marker %s now held by pid %d on %s",
			h.MarkerPath, current.PID, current.Hostname)
	}
	if err := os.Remove(h.MarkerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock marker: %w", err)
	}
	return nil
}

// Inspect reports whether resourcePath is locked, by whom, and whether the
// marker is older than stale. A missing marker is not an error.
func Inspect(resourcePath string, stale time.Duration) (*Status, error) {
	if stale <= 0 {
		stale = DefaultStale
	}
	markerPath := MarkerPath(resourcePath)
	status := &Status{Resource: resourcePath, MarkerPath: markerPath}

	holder, info, err := readMarker(markerPath)
	if err != nil && info == nil {
		if os.IsNotExist(err) {
			return status, nil
		}
		return nil, fmt.Errorf("failed to inspect lock marker: %w", err)
	}

	status.Locked = true
	status.Holder = holder
	status.Age = time.Since(info.ModTime())
	status.Stale = status.Age > stale
	return status, nil
}

func emit(opts Options, ev Event) {
	if opts.Observer != nil {
		opts.Observer(ev)
	}
}
