package filelock

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// markerWatcher wakes a waiting acquirer as soon as the marker it is
// contending for is removed. A nil watcher degrades to plain sleeping.
type markerWatcher struct {
	w      *fsnotify.Watcher
	marker string
}

// watchMarker watches the marker's directory. Watching the directory rather
// than the file survives the marker being deleted and recreated. Errors
// setting up the watch are ignored and yield a nil watcher.
func watchMarker(markerPath string) *markerWatcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := w.Add(filepath.Dir(markerPath)); err != nil {
		_ = w.Close()
		return nil
	}
	return &markerWatcher{w: w, marker: filepath.Clean(markerPath)}
}

// wait sleeps for d, returning early when the marker is removed or renamed
// away. It returns ctx.Err() if ctx is done first.
func (m *markerWatcher) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if m != nil {
		events = m.w.Events
		errs = m.w.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == m.marker && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}
}

// Close stops the watch. Safe on a nil watcher.
func (m *markerWatcher) Close() {
	if m == nil {
		return
	}
	_ = m.w.Close()
}
