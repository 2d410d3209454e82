// Package lockmetrics records how long workers wait for session locks and
// merges the samples of all workers into one JSON file for analysis.
package lockmetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopqa/authcache/internal/filelock"
	"github.com/shopqa/authcache/internal/logging"
	"github.com/shopqa/authcache/internal/util"
)

// FileName is the metrics file inside the diagnostics directory.
const FileName = "lock-metrics.json"

// Operation names as they appear in the metrics file.
const (
	OpAcquire = string(filelock.OpAcquire)
	OpRelease = string(filelock.OpRelease)
)

// Sample is one lock operation. Field names match the metrics file format.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	PID        int       `json:"pid"`
	Role       string    `json:"role"`
	Operation  string    `json:"operation"`
	DurationMs float64   `json:"durationMs"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// FromEvent converts a lock event into a Sample.
func FromEvent(ev filelock.Event) Sample {
	s := Sample{
		Timestamp:  ev.Start.UTC(),
		PID:        ev.PID,
		Role:       ev.Label,
		Operation:  string(ev.Operation),
		DurationMs: float64(ev.Duration) / float64(time.Millisecond),
		Success:    ev.Success,
	}
	if ev.Err != nil {
		s.Error = ev.Err.Error()
	}
	return s
}

// Recorder buffers samples in memory until Flush. One Recorder is created
// per worker process and passed explicitly to whoever acquires locks.
// It is safe for concurrent use.
type Recorder struct {
	path   string
	logger *logging.Logger

	mu      sync.Mutex
	samples []Sample

	// flushMu is held for a whole Flush so that two flushes never write or
	// trim the same samples.
	flushMu sync.Mutex
}

// NewRecorder creates a Recorder that flushes into {diagnosticsDir}/lock-metrics.json.
func NewRecorder(diagnosticsDir string, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Recorder{
		path:   filepath.Join(diagnosticsDir, FileName),
		logger: logger.WithComponent("lockmetrics"),
	}
}

// Path returns the metrics file path.
func (r *Recorder) Path() string {
	return r.path
}

// Observe records a lock event. Its signature matches filelock.Observer.
func (r *Recorder) Observe(ev filelock.Event) {
	r.Record(FromEvent(ev))
}

// Record appends a sample to the buffer.
func (r *Recorder) Record(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

// Samples returns a copy of the buffered samples.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

// Flush merges the buffered samples into the metrics file and clears the
// buffer. Concurrent flushes from other processes are serialized with a
// file lock on the metrics file itself; that lock is not observed, so
// flushing never records samples of its own. Existing content that cannot
// be parsed is replaced.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	pending := append([]Sample(nil), r.samples...)
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create diagnostics directory: %w", err)
	}

	h, err := filelock.Acquire(ctx, r.path, filelock.Options{
		Retries:    50,
		MinTimeout: 10 * time.Millisecond,
		MaxTimeout: 200 * time.Millisecond,
		Stale:      10 * time.Second,
		Label:      "lock-metrics",
		Logger:     r.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to lock metrics file: %w", err)
	}
	defer func() { _ = h.Release() }()

	existing, err := Load(r.path)
	if err != nil && !os.IsNotExist(err) {
		r.logger.Warn("replacing unreadable metrics file", "path", r.path, "error", err.Error())
		existing = nil
	}

	merged := append(existing, pending...)
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if err := util.WriteFileAtomic(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}

	// Samples recorded while flushing stay buffered for the next flush.
	r.mu.Lock()
	r.samples = r.samples[len(pending):]
	r.mu.Unlock()

	r.logger.Info("lock metrics saved", "recorded", len(pending), "total", len(merged))
	return nil
}

// Load reads all samples from a metrics file.
func Load(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var samples []Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("failed to parse metrics file: %w", err)
	}
	return samples, nil
}
