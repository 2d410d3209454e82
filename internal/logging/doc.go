// Package logging provides structured logging for authcache workers.
//
// This package wraps Go's log/slog to provide JSON-formatted logs. Every
// parallel test worker appends to the same diagnostics/auth.log, and each line
// carries the writer's pid, so lock hand-offs and duplicate logins can be
// reconstructed after a run.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer. Across processes the
// file is opened with O_APPEND so that whole lines are never interleaved.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("diagnostics", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithComponent("auth").WithRole("standard")
//	log.Info("cache hit", "path", "auth/standard.json")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"cache hit","pid":4312,"component":"auth","role":"standard","path":"auth/standard.json"}
//
// # Log Aggregation
//
// [AggregateLogs] reads the shared file back, [FilterLogs] narrows it by role,
// pid, component, phase or time, and [DetectDuplicateLogins] reports fresh
// logins of one role that happened within a short window of each other:
//
//	entries, err := logging.AggregateLogs("diagnostics/auth.log")
//	dups := logging.DetectDuplicateLogins(entries, 5*time.Second)
//
// [ExportLogEntries] renders entries as json, text or csv.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a bytes.Buffer
// to assert on emitted lines.
package logging
