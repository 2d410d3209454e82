// Package browser defines the browser operations the session cache needs and
// adapts playwright-go to them. Code outside this package depends only on the
// interfaces, so tests can substitute an in-memory driver.
package browser

import (
	"context"
	"time"

	"github.com/shopqa/authcache/internal/errors"
)

// Errors returned (wrapped) by drivers. Login treats both as transient.
var (
	ErrTimeout = errors.ErrTimeout
	ErrNetwork = errors.ErrNetwork
)

// Viewport is the page size of a new context.
type Viewport struct {
	Width  int
	Height int
}

// ContextOptions configures a new browser context.
type ContextOptions struct {
	// RestoreFrom is serialized state from Context.SerializeState. Empty
	// starts an unauthenticated context.
	RestoreFrom []byte
	Viewport    Viewport
}

// Driver creates isolated browser contexts.
type Driver interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browser profile (cookies and storage).
type Context interface {
	NewPage() (Page, error)
	// SerializeState captures cookies and storage as an opaque blob.
	SerializeState() ([]byte, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	Goto(url string) error
	Fill(selector, value string) error
	Click(selector string) error
	// WaitForURL blocks until the page URL matches the glob pattern.
	WaitForURL(pattern string, timeout time.Duration) error
	URL() string
	IsVisible(selector string) (bool, error)
	TextContent(selector string) (string, error)
	Close() error
}
