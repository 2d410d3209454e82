package auth

import (
	"time"

	"github.com/shopqa/authcache/internal/browser"
	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/role"
)

// Source records how a Session was obtained.
type Source string

const (
	// SourceCache means the stored session validated on the first check.
	SourceCache Source = "cache"
	// SourceCacheAfterWait means another worker published the session while
	// this one waited for the lock.
	SourceCacheAfterWait Source = "cache_after_wait"
	// SourceLogin means this worker performed the UI login.
	SourceLogin Source = "login"
)

// Session is an authenticated browser context with an open page on the
// authenticated landing page. The caller owns it and must Close it.
type Session struct {
	Role    role.Role
	Source  Source
	Context browser.Context
	Page    browser.Page
	// Elapsed is the wall time Acquire took.
	Elapsed time.Duration
}

// Close closes the page and its context.
func (s *Session) Close() error {
	var pageErr error
	if s.Page != nil {
		pageErr = s.Page.Close()
	}
	return errors.Join(pageErr, s.Context.Close())
}
