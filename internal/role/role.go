// Package role defines the closed set of user roles a test can log in as
// and the credentials attached to each.
package role

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopqa/authcache/internal/errors"
)

// Role names one kind of user account. The set is closed: anything not
// listed below is rejected when configuration is loaded.
type Role string

const (
	Standard          Role = "standard"
	LockedOut         Role = "locked_out"
	Problem           Role = "problem"
	PerformanceGlitch Role = "performance_glitch"
	Error             Role = "error"
	Visual            Role = "visual"
)

// All returns every known role in declaration order.
func All() []Role {
	return []Role{Standard, LockedOut, Problem, PerformanceGlitch, Error, Visual}
}

// Names returns the string form of every known role.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, r := range all {
		names[i] = string(r)
	}
	return names
}

// Parse converts a name to a Role. Matching is case-insensitive and
// surrounding whitespace is ignored.
func Parse(name string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(name)))
	if !slices.Contains(All(), r) {
		return "", errors.NewValidationError(
			fmt.Sprintf("must be one of: %s", strings.Join(Names(), ", ")),
		).WithField("role").WithValue(name).WithCause(errors.ErrUnknownRole)
	}
	return r, nil
}

// MustParse is like Parse but panics on unknown names. Intended for tests
// and package-level tables.
func MustParse(name string) Role {
	r, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return r
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// Credentials are the login form inputs for one role.
type Credentials struct {
	Username    string
	Password    string
	Description string
}

// Directory maps roles to their credentials.
type Directory map[Role]Credentials

// Lookup returns the credentials for r.
func (d Directory) Lookup(r Role) (Credentials, error) {
	creds, ok := d[r]
	if !ok {
		return Credentials{}, errors.NewNotFoundError("credentials", string(r))
	}
	return creds, nil
}

// Roles returns the roles present in the directory in declaration order.
func (d Directory) Roles() []Role {
	var out []Role
	for _, r := range All() {
		if _, ok := d[r]; ok {
			out = append(out, r)
		}
	}
	return out
}
