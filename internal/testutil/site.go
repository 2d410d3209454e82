package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopqa/authcache/internal/config"
	"github.com/shopqa/authcache/internal/role"
)

// Error texts rendered by the fake login page.
const (
	LockedOutMessage   = "Epic sadface: Sorry, this user has been locked out."
	BadPasswordMessage = "Epic sadface: Username and password do not match any user in this service"
	NotLoggedInMessage = "Epic sadface: You can only access '/inventory.html' when you are logged in."
	fakeSessionCookie  = "session-username"
	lockedOutUser      = "locked_out_user"
)

// FakeSite is an in-memory model of the shop's authentication: it knows the
// accounts, issues session tokens on successful login and tracks how many
// logins each account performed. It is safe for concurrent use.
type FakeSite struct {
	Site config.SiteConfig

	// LoginDelay is slept inside every submit to widen race windows.
	LoginDelay time.Duration

	mu        sync.Mutex
	passwords map[string]string
	rejected  map[string]bool
	tokens    map[string]string // token -> username
	logins    map[string]int
	failures  []error
	issued    int
}

// NewFakeSite builds a site that accepts every account of dir. The locked
// out account is rejected the way the real shop rejects it.
func NewFakeSite(site config.SiteConfig, dir role.Directory) *FakeSite {
	s := &FakeSite{
		Site:      site,
		passwords: make(map[string]string),
		rejected:  map[string]bool{lockedOutUser: true},
		tokens:    make(map[string]string),
		logins:    make(map[string]int),
	}
	for _, creds := range dir {
		s.passwords[creds.Username] = creds.Password
	}
	return s
}

// Reject makes every future login of username fail with the locked-out
// message.
func (s *FakeSite) Reject(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[username] = true
}

// FailNext makes the next len(errs) submits fail with the given errors, in
// order, before any credential check.
func (s *FakeSite) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Expire invalidates every token issued to username, as a server-side
// session timeout would.
func (s *FakeSite) Expire(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, user := range s.tokens {
		if user == username {
			delete(s.tokens, tok)
		}
	}
}

// LoginCount returns the number of successful logins of username.
func (s *FakeSite) LoginCount(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins[username]
}

// TotalLogins returns the number of successful logins across all accounts.
func (s *FakeSite) TotalLogins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.logins {
		total += n
	}
	return total
}

// Valid reports whether token is a live session.
func (s *FakeSite) Valid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

// submit checks credentials. It returns the session token on success, the
// page error text on rejection, or an injected failure.
func (s *FakeSite) submit(username, password string) (token, pageError string, err error) {
	if s.LoginDelay > 0 {
		time.Sleep(s.LoginDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > 0 {
		err, s.failures = s.failures[0], s.failures[1:]
		return "", "", err
	}
	if s.rejected[username] {
		return "", LockedOutMessage, nil
	}
	want, ok := s.passwords[username]
	if !ok || want != password {
		return "", BadPasswordMessage, nil
	}

	s.issued++
	token = fmt.Sprintf("%s-%d", username, s.issued)
	s.tokens[token] = username
	s.logins[username]++
	return token, "", nil
}
