package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Level names as they appear in the "level" field of a log line.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the shared log file inside the diagnostics directory.
const LogFileName = "auth.log"

// sink is the destination shared by a root Logger and all of its children.
type sink struct {
	mu   sync.Mutex
	file *os.File
}

// Logger writes JSON lines tagged with the worker's pid and host. Child
// loggers returned by the With* methods share the parent's destination.
// It is safe for concurrent use.
type Logger struct {
	slog *slog.Logger
	sink *sink
}

// NewLogger appends JSON lines to {dir}/auth.log, creating dir if needed.
// The file is opened O_APPEND so whole lines from concurrent worker
// processes never interleave. An empty dir logs to stderr.
//
// level is one of debug, info, warn or error in any case; anything else
// means info.
func NewLogger(dir string, level string) (*Logger, error) {
	if dir == "" {
		return NewWriterLogger(os.Stderr, level), nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewWriterLogger(file, level)
	l.sink.file = file
	return l, nil
}

// NewWriterLogger creates a Logger writing JSON lines to w.
func NewWriterLogger(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelOf(level)})

	attrs := []any{slog.Int("pid", os.Getpid())}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, slog.String("host", host))
	}
	return &Logger{slog: slog.New(handler).With(attrs...), sink: &sink{}}
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	return &Logger{slog: slog.New(slog.DiscardHandler), sink: &sink{}}
}

func levelOf(name string) slog.Level {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lv
}

// WithRole tags entries with the role whose session is being handled.
func (l *Logger) WithRole(role string) *Logger {
	return l.child(slog.String("role", role))
}

// WithComponent tags entries with the emitting component
// ("filelock", "login", "auth", ...).
func (l *Logger) WithComponent(component string) *Logger {
	return l.child(slog.String("component", component))
}

// WithPhase tags entries with the acquisition phase: "check_cache",
// "acquire_lock", "recheck_cache", "login" or "release_lock".
func (l *Logger) WithPhase(phase string) *Logger {
	return l.child(slog.String("phase", phase))
}

// With adds alternating key/value attributes. Pairs whose key is not a
// string are dropped.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	attrs := make([]any, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	return l.child(attrs...)
}

func (l *Logger) child(attrs ...any) *Logger {
	return &Logger{slog: l.slog.With(attrs...), sink: l.sink}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *Logger) log(level slog.Level, msg string, args []any) {
	l.slog.Log(context.Background(), level, msg, args...)
}

// Close syncs and closes the log file. It is a no-op for writer and nop
// loggers and safe to call more than once; children share the same file.
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	f := l.sink.file
	if f == nil {
		return nil
	}
	l.sink.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}
