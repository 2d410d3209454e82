// Package filelock provides a cross-process mutual-exclusion lock keyed by a
// filesystem path.
//
// Parallel test workers run as separate OS processes on one host, so an
// in-memory mutex is not enough to stop them from logging in as the same
// role at the same time. A lock on resource R is the existence of the marker
// file R+".lock", created with O_CREATE|O_EXCL so exactly one process can
// create it. The marker holds a JSON [Holder] with a unique token, pid and
// hostname.
//
// # Contention
//
// [Acquire] retries with exponential backoff bounded by Options.MinTimeout
// and Options.MaxTimeout, at most Options.Retries times after the first
// attempt. Waiters watch the marker's directory with fsnotify and wake as
// soon as the marker disappears. When retries run out, Acquire returns an
// *errors.LockAcquisitionError naming the holder.
//
// # Staleness
//
// A holder refreshes the marker's mtime every Options.Update. A marker older
// than Options.Stale is treated as abandoned and removed by the next
// acquirer, under a short-lived guard file and only after re-checking that
// the marker still belongs to the holder it judged stale. A live holder
// whose heartbeat stalls past the stale threshold can therefore lose its
// lock; the heartbeat notices and marks the [Handle] compromised.
//
// # Basic Usage
//
//	h, err := filelock.Acquire(ctx, "auth/standard.json", filelock.Options{
//	    Retries: 10,
//	    Label:   "standard",
//	})
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//
// Release is idempotent. It removes the marker only if it still carries the
// handle's token.
//
// # Observability
//
// Every acquire and release reports an [Event] to Options.Observer, which is
// how lock metrics are collected. [Inspect] reports the current holder of a
// resource without taking the lock.
package filelock
