// Package errors provides centralized error definitions and error handling utilities
// for authcache: domain-specific errors, semantic error types and constructors
// with context wrapping.
//
// # Error Types
//
// Domain-specific errors represent failures of the session cache subsystem:
//   - LockAcquisitionError: lock retries exhausted while another worker held the lock
//   - LoginRejectedError: the application rejected the role's credentials (permanent)
//   - LoginFailedError: transient login failures exhausted their retry budget
//   - SessionValidationError: a cached session failed verification (always downgraded to a miss)
//   - SessionError: session store failures (read, publish, delete)
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or configuration
//
// Lock and login errors carry the role, process id and wall-clock time of the
// failure so that cross-worker contention can be diagnosed after the fact.
//
// # Usage
//
//	err := errors.NewLockAcquisitionError("auth/standard.json", 11, 4*time.Second).
//		WithRole("standard").
//		WithHolder(4312, "ci-runner-7")
//
//	var lockErr *errors.LockAcquisitionError
//	if errors.As(err, &lockErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session cache sentinel errors
var (
	// ErrSessionNotFound indicates that no cached session exists for a role.
	ErrSessionNotFound = New("session not found")
	// ErrSessionInvalid indicates that a cached session no longer authenticates.
	ErrSessionInvalid = New("session is no longer valid")
)

// Lock sentinel errors
var (
	// ErrLockUnavailable indicates that a lock stayed held by another worker.
	ErrLockUnavailable = New("lock unavailable")
	// ErrLockNotHeld indicates that a lock marker no longer belongs to the caller.
	ErrLockNotHeld = New("lock not held")
)

// Login sentinel errors
var (
	// ErrLoginRejected indicates that the application refused the credentials.
	ErrLoginRejected = New("login rejected")
	// ErrLoginFailed indicates that login did not succeed within its retry budget.
	ErrLoginFailed = New("login failed")
	// ErrUnknownRole indicates a role name outside the configured enumeration.
	ErrUnknownRole = New("unknown role")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrNetwork indicates a connection-level failure (reset, refused, DNS).
	ErrNetwork = New("network error")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// baseError carries the message and cause shared by the error types below.
type baseError struct {
	message string
	cause   error
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

// Is delegates to the cause so sentinels wrapped inside still match.
func (e *baseError) Is(target error) bool {
	return e.cause != nil && errors.Is(e.cause, target)
}

// Attribution identifies which worker hit an error and when.
type Attribution struct {
	Role string
	PID  int
	At   time.Time
}

func newAttribution() Attribution {
	return Attribution{PID: os.Getpid(), At: time.Now()}
}

// parts renders the attribution as key=value fragments for error prefixes.
func (a Attribution) parts() []string {
	var parts []string
	if a.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", a.Role))
	}
	if a.PID != 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", a.PID))
	}
	if !a.At.IsZero() {
		parts = append(parts, fmt.Sprintf("at=%s", a.At.UTC().Format(time.RFC3339Nano)))
	}
	return parts
}

func prefixed(name string, parts []string) string {
	if len(parts) == 0 {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SessionError represents errors from the session store.
//
// Example:
//
//	err := errors.NewSessionError("failed to publish session", ioErr).WithRole("standard")
//	fmt.Println(err) // "session error [role=standard]: failed to publish session: ..."
type SessionError struct {
	baseError
	Role string
	Path string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message: message,
			cause:   cause,
		},
	}
}

// WithRole adds the role to the error context.
func (e *SessionError) WithRole(role string) *SessionError {
	e.Role = role
	return e
}

// WithPath adds the session file path to the error context.
func (e *SessionError) WithPath(path string) *SessionError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", e.Role))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	prefix := prefixed("session error", parts)

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SessionValidationError reports that a cached session could not be reused.
// The orchestrator downgrades it to a cache miss; it is logged, never returned.
type SessionValidationError struct {
	baseError
	Role   string
	Reason string
}

// NewSessionValidationError creates a new SessionValidationError.
func NewSessionValidationError(role, reason string, cause error) *SessionValidationError {
	return &SessionValidationError{
		baseError: baseError{
			message: reason,
			cause:   cause,
		},
		Role:   role,
		Reason: reason,
	}
}

// Error returns the formatted error message.
func (e *SessionValidationError) Error() string {
	prefix := prefixed("session validation error", []string{fmt.Sprintf("role=%s", e.Role)})
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Reason)
}

// Is checks if this error matches the target.
func (e *SessionValidationError) Is(target error) bool {
	if _, ok := target.(*SessionValidationError); ok {
		return true
	}
	if target == ErrSessionInvalid {
		return true
	}
	return e.baseError.Is(target)
}

// LockAcquisitionError is returned when a lock could not be acquired before
// the retry budget ran out.
//
// Example:
//
//	err := errors.NewLockAcquisitionError("auth/standard.json", 11, 3*time.Second)
//	fmt.Println(err) // "lock acquisition error [role=standard, pid=42, at=...]: ..."
type LockAcquisitionError struct {
	baseError
	Attribution
	Resource   string
	Attempts   int
	Waited     time.Duration
	HolderPID  int
	HolderHost string
}

// NewLockAcquisitionError creates a new LockAcquisitionError for the current process.
func NewLockAcquisitionError(resource string, attempts int, waited time.Duration) *LockAcquisitionError {
	return &LockAcquisitionError{
		baseError: baseError{
			message: fmt.Sprintf("could not lock %s after %d attempt(s) in %s", resource, attempts, waited.Round(time.Millisecond)),
		},
		Attribution: newAttribution(),
		Resource:    resource,
		Attempts:    attempts,
		Waited:      waited,
	}
}

// WithRole adds the role to the error context.
func (e *LockAcquisitionError) WithRole(role string) *LockAcquisitionError {
	e.Role = role
	return e
}

// WithHolder records the process that held the lock when acquisition gave up.
func (e *LockAcquisitionError) WithHolder(pid int, host string) *LockAcquisitionError {
	e.HolderPID = pid
	e.HolderHost = host
	return e
}

// WithCause adds a cause to the error.
func (e *LockAcquisitionError) WithCause(cause error) *LockAcquisitionError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *LockAcquisitionError) Error() string {
	msg := fmt.Sprintf("%s: %s", prefixed("lock acquisition error", e.parts()), e.message)
	if e.HolderPID != 0 {
		msg = fmt.Sprintf("%s (held by pid %d on %s)", msg, e.HolderPID, e.HolderHost)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *LockAcquisitionError) Is(target error) bool {
	if _, ok := target.(*LockAcquisitionError); ok {
		return true
	}
	if target == ErrLockUnavailable {
		return true
	}
	return e.baseError.Is(target)
}

// LoginRejectedError is returned when the application explicitly refuses a
// role's credentials. It is never retried.
type LoginRejectedError struct {
	baseError
	Attribution
	Username string
}

// NewLoginRejectedError creates a new LoginRejectedError for the current process.
// pageMessage is the text shown by the application's error indicator, if any.
func NewLoginRejectedError(role, username, pageMessage string) *LoginRejectedError {
	msg := fmt.Sprintf("credentials for %q were rejected", username)
	if pageMessage != "" {
		msg = fmt.Sprintf("%s: %s", msg, pageMessage)
	}
	a := newAttribution()
	a.Role = role
	return &LoginRejectedError{
		baseError: baseError{
			message: msg,
		},
		Attribution: a,
		Username:    username,
	}
}

// Error returns the formatted error message.
func (e *LoginRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", prefixed("login rejected", e.parts()), e.message)
}

// Is checks if this error matches the target.
func (e *LoginRejectedError) Is(target error) bool {
	if _, ok := target.(*LoginRejectedError); ok {
		return true
	}
	if target == ErrLoginRejected {
		return true
	}
	return e.baseError.Is(target)
}

// LoginFailedError is returned when transient login failures exhausted the
// retry budget. It wraps the last transient error.
type LoginFailedError struct {
	baseError
	Attribution
	Attempts int
}

// NewLoginFailedError creates a new LoginFailedError for the current process.
func NewLoginFailedError(role string, attempts int, cause error) *LoginFailedError {
	a := newAttribution()
	a.Role = role
	return &LoginFailedError{
		baseError: baseError{
			message: fmt.Sprintf("login did not succeed after %d attempt(s)", attempts),
			cause:   cause,
		},
		Attribution: a,
		Attempts:    attempts,
	}
}

// Error returns the formatted error message.
func (e *LoginFailedError) Error() string {
	prefix := prefixed("login failed", e.parts())
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *LoginFailedError) Is(target error) bool {
	if _, ok := target.(*LoginFailedError); ok {
		return true
	}
	if target == ErrLoginFailed {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
// The session store returns it for roles without a cached session; callers
// treat it as an ordinary cache miss.
//
// Example:
//
//	err := errors.NewNotFoundError("session", "standard")
//	fmt.Println(err) // "session 'standard' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message: fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrSessionNotFound && e.ResourceType == "session" {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or configuration.
//
// Example:
//
//	err := errors.NewValidationError("unknown role").WithField("roles").WithValue("admin")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message: message,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	prefix := prefixed("validation error", parts)

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap prefixes err with message, keeping it matchable with Is and As.
// A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
