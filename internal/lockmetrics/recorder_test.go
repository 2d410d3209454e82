package lockmetrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/filelock"
)

func TestFromEvent(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := filelock.Event{
		Operation: filelock.OpAcquire,
		Resource:  "/tmp/auth/standard.json",
		Label:     "standard",
		PID:       4242,
		Start:     start,
		Duration:  1500 * time.Microsecond,
		Success:   false,
		Err:       errors.ErrLockUnavailable,
	}

	s := FromEvent(ev)
	if s.Operation != OpAcquire || s.Role != "standard" || s.PID != 4242 {
		t.Errorf("FromEvent() = %+v", s)
	}
	if s.DurationMs != 1.5 {
		t.Errorf("DurationMs = %v, want 1.5", s.DurationMs)
	}
	if !s.Timestamp.Equal(start) {
		t.Errorf("Timestamp = %v, want %v", s.Timestamp, start)
	}
	if s.Error != errors.ErrLockUnavailable.Error() {
		t.Errorf("Error = %q", s.Error)
	}
}

func TestRecorder_ObserveLockEvents(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(filepath.Join(dir, "diagnostics"), nil)

	opts := filelock.DefaultOptions()
	opts.Label = "problem"
	opts.Observer = rec.Observe

	h, err := filelock.Acquire(context.Background(), filepath.Join(dir, "auth", "problem.json"), opts)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	samples := rec.Samples()
	if len(samples) != 2 {
		t.Fatalf("len(Samples()) = %d, want 2", len(samples))
	}
	if samples[0].Operation != OpAcquire || samples[1].Operation != OpRelease {
		t.Errorf("operations = %q, %q", samples[0].Operation, samples[1].Operation)
	}
	for _, s := range samples {
		if s.Role != "problem" || !s.Success || s.PID != os.Getpid() {
			t.Errorf("unexpected sample %+v", s)
		}
	}
}

func TestRecorder_Flush(t *testing.T) {
	t.Run("nothing buffered writes nothing", func(t *testing.T) {
		rec := NewRecorder(t.TempDir(), nil)
		if err := rec.Flush(context.Background()); err != nil {
			t.Fatalf("Flush() failed: %v", err)
		}
		if _, err := os.Stat(rec.Path()); !os.IsNotExist(err) {
			t.Error("Flush() with no samples should not create the file")
		}
	})

	t.Run("merges with existing file", func(t *testing.T) {
		dir := t.TempDir()
		first := NewRecorder(dir, nil)
		first.Record(Sample{Role: "standard", Operation: OpAcquire, Success: true, DurationMs: 3})
		if err := first.Flush(context.Background()); err != nil {
			t.Fatalf("Flush() failed: %v", err)
		}
		if got := len(first.Samples()); got != 0 {
			t.Errorf("buffer after flush = %d, want 0", got)
		}

		second := NewRecorder(dir, nil)
		second.Record(Sample{Role: "visual", Operation: OpAcquire, Success: true, DurationMs: 40})
		second.Record(Sample{Role: "visual", Operation: OpRelease, Success: true})
		if err := second.Flush(context.Background()); err != nil {
			t.Fatalf("Flush() failed: %v", err)
		}

		samples, err := Load(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if len(samples) != 3 {
			t.Fatalf("len(samples) = %d, want 3", len(samples))
		}
		if samples[0].Role != "standard" || samples[2].Operation != OpRelease {
			t.Errorf("unexpected order: %+v", samples)
		}
		if _, err := os.Stat(filepath.Join(dir, FileName+filelock.MarkerSuffix)); !os.IsNotExist(err) {
			t.Error("metrics lock marker left behind")
		}
	})

	t.Run("replaces unreadable file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}

		rec := NewRecorder(dir, nil)
		rec.Record(Sample{Role: "error", Operation: OpAcquire, Success: true})
		if err := rec.Flush(context.Background()); err != nil {
			t.Fatalf("Flush() failed: %v", err)
		}

		samples, err := Load(rec.Path())
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if len(samples) != 1 || samples[0].Role != "error" {
			t.Errorf("samples = %+v", samples)
		}
	})

	t.Run("concurrent flushes lose nothing", func(t *testing.T) {
		dir := t.TempDir()
		const recorders = 6
		const perRecorder = 5

		var wg sync.WaitGroup
		errs := make(chan error, recorders)
		for i := 0; i < recorders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := NewRecorder(dir, nil)
				for j := 0; j < perRecorder; j++ {
					rec.Record(Sample{Role: fmt.Sprintf("r%d", i), Operation: OpAcquire, Success: true})
				}
				errs <- rec.Flush(context.Background())
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("Flush() failed: %v", err)
			}
		}

		samples, err := Load(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if len(samples) != recorders*perRecorder {
			t.Errorf("len(samples) = %d, want %d", len(samples), recorders*perRecorder)
		}
	})
}

func TestRecorder_FlushFromManyGoroutines(t *testing.T) {
	rec := NewRecorder(t.TempDir(), nil)
	for i := 0; i < 3; i++ {
		rec.Record(Sample{Role: "standard", Operation: OpAcquire, Success: true, DurationMs: float64(i)})
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- rec.Flush(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Flush() failed: %v", err)
		}
	}

	samples, err := Load(rec.Path())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("len(samples) = %d, want 3", len(samples))
	}
	if got := len(rec.Samples()); got != 0 {
		t.Errorf("buffer after flush = %d, want 0", got)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	if !os.IsNotExist(err) {
		t.Errorf("Load() error = %v, want not-exist", err)
	}
}
