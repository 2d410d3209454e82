package filelock

import (
	"time"

	"github.com/shopqa/authcache/internal/logging"
)

// Default tuning, matching the lock settings the suite has always used.
const (
	DefaultRetries    = 10
	DefaultMinTimeout = 100 * time.Millisecond
	DefaultMaxTimeout = 2 * time.Second
	DefaultStale      = 30 * time.Second
)

// MarkerSuffix is appended to a resource path to form its lock marker path.
const MarkerSuffix = ".lock"

// reclaimSuffix is appended to a marker path to form the reclaim guard path.
const reclaimSuffix = ".reclaim"

// Operation identifies the lock operation an Event describes.
type Operation string

const (
	OpAcquire Operation = "acquire"
	OpRelease Operation = "release"
)

// Event describes one finished acquire or release.
type Event struct {
	Operation Operation
	Resource  string
	Label     string
	PID       int
	// Start is taken before any waiting, so Duration includes contention.
	Start    time.Time
	Duration time.Duration
	Success  bool
	Err      error
}

// Observer receives an Event for every acquire and release. It is called
// synchronously on the acquiring goroutine and must not block.
type Observer func(Event)

// Options configures Acquire. Zero durations select the defaults above;
// Retries is taken as given.
type Options struct {
	// Retries is the number of retries after the first attempt. Zero means
	// fail on first contention.
	Retries int
	// MinTimeout and MaxTimeout bound the exponential backoff between attempts.
	MinTimeout time.Duration
	MaxTimeout time.Duration
	// Stale is the marker age after which the holder is presumed dead.
	Stale time.Duration
	// Update is the heartbeat interval while held. Defaults to Stale/2.
	Update time.Duration
	// Label names the lock in logs, errors and events (usually the role).
	Label    string
	Logger   *logging.Logger
	Observer Observer
}

// DefaultOptions returns Options populated with the default tuning.
func DefaultOptions() Options {
	return Options{
		Retries:    DefaultRetries,
		MinTimeout: DefaultMinTimeout,
		MaxTimeout: DefaultMaxTimeout,
		Stale:      DefaultStale,
	}
}

func (o Options) withDefaults() Options {
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.MinTimeout <= 0 {
		o.MinTimeout = DefaultMinTimeout
	}
	if o.MaxTimeout < o.MinTimeout {
		o.MaxTimeout = max(DefaultMaxTimeout, o.MinTimeout)
	}
	if o.Stale <= 0 {
		o.Stale = DefaultStale
	}
	if o.Update <= 0 || o.Update >= o.Stale {
		o.Update = o.Stale / 2
	}
	if o.Logger == nil {
		o.Logger = logging.NopLogger()
	}
	return o
}

// Holder is the JSON content of a lock marker.
type Holder struct {
	Token      string    `json:"token"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	Label      string    `json:"label,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Status reports the state of a resource's lock marker.
type Status struct {
	Resource   string
	MarkerPath string
	Locked     bool
	// Holder is nil when the marker exists but could not be parsed.
	Holder *Holder
	Age    time.Duration
	Stale  bool
}
