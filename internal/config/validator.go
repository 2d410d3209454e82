package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/shopqa/authcache/internal/role"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lock.stale_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidEngines returns the list of supported browser engines
func ValidEngines() []string {
	return []string{"chromium", "firefox", "webkit"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSite()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateLock()...)
	errors = append(errors, c.validateLogin()...)
	errors = append(errors, c.validateBrowser()...)
	errors = append(errors, c.validateRoles()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateSite validates the SiteConfig
func (c *Config) validateSite() []ValidationError {
	var errors []ValidationError

	u, err := url.Parse(c.Site.BaseURL)
	if c.Site.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "site.base_url",
			Value:   c.Site.BaseURL,
			Message: "must be an absolute URL with scheme and host",
		})
	}

	if c.Site.AuthenticatedPath == "" {
		errors = append(errors, ValidationError{
			Field:   "site.authenticated_path",
			Value:   c.Site.AuthenticatedPath,
			Message: "cannot be empty",
		})
	}

	if c.Site.AuthenticatedURLPattern == "" {
		errors = append(errors, ValidationError{
			Field:   "site.authenticated_url_pattern",
			Value:   c.Site.AuthenticatedURLPattern,
			Message: "cannot be empty",
		})
	} else if _, err := glob.Compile(c.Site.AuthenticatedURLPattern, '/'); err != nil {
		errors = append(errors, ValidationError{
			Field:   "site.authenticated_url_pattern",
			Value:   c.Site.AuthenticatedURLPattern,
			Message: fmt.Sprintf("invalid glob pattern: %v", err),
		})
	}

	selectors := []struct {
		field string
		value string
	}{
		{"site.selectors.username", c.Site.Selectors.Username},
		{"site.selectors.password", c.Site.Selectors.Password},
		{"site.selectors.submit", c.Site.Selectors.Submit},
		{"site.selectors.error", c.Site.Selectors.Error},
		{"site.selectors.authenticated_marker", c.Site.Selectors.AuthenticatedMarker},
	}
	for _, s := range selectors {
		if strings.TrimSpace(s.value) == "" {
			errors = append(errors, ValidationError{
				Field:   s.field,
				Value:   s.value,
				Message: "cannot be empty",
			})
		}
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if c.Paths.AuthDir == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.auth_dir",
			Value:   c.Paths.AuthDir,
			Message: "cannot be empty",
		})
	}
	if c.Paths.DiagnosticsDir == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.diagnostics_dir",
			Value:   c.Paths.DiagnosticsDir,
			Message: "cannot be empty",
		})
	}

	return errors
}

// validateLock validates the LockConfig
func (c *Config) validateLock() []ValidationError {
	var errors []ValidationError

	if c.Lock.Retries < 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.retries",
			Value:   c.Lock.Retries,
			Message: "must be non-negative (0 fails on first contention)",
		})
	}
	if c.Lock.MinTimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.min_timeout_ms",
			Value:   c.Lock.MinTimeoutMs,
			Message: "must be positive",
		})
	}
	if c.Lock.MaxTimeoutMs < c.Lock.MinTimeoutMs {
		errors = append(errors, ValidationError{
			Field:   "lock.max_timeout_ms",
			Value:   c.Lock.MaxTimeoutMs,
			Message: fmt.Sprintf("must be at least lock.min_timeout_ms (%d)", c.Lock.MinTimeoutMs),
		})
	}

	// A stale threshold below one second would reclaim locks from healthy holders.
	const minStaleMs = 1000
	if c.Lock.StaleMs < minStaleMs {
		errors = append(errors, ValidationError{
			Field:   "lock.stale_ms",
			Value:   c.Lock.StaleMs,
			Message: fmt.Sprintf("must be at least %dms", minStaleMs),
		})
	}
	if c.Lock.UpdateMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.update_ms",
			Value:   c.Lock.UpdateMs,
			Message: "must be non-negative (0 uses stale_ms/2)",
		})
	} else if c.Lock.UpdateMs > 0 && c.Lock.UpdateMs >= c.Lock.StaleMs {
		errors = append(errors, ValidationError{
			Field:   "lock.update_ms",
			Value:   c.Lock.UpdateMs,
			Message: fmt.Sprintf("must be less than lock.stale_ms (%d)", c.Lock.StaleMs),
		})
	}

	return errors
}

// validateLogin validates the LoginConfig
func (c *Config) validateLogin() []ValidationError {
	var errors []ValidationError

	if c.Login.MaxRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "login.max_retries",
			Value:   c.Login.MaxRetries,
			Message: "must be at least 1",
		})
	}
	if c.Login.BackoffMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "login.backoff_ms",
			Value:   c.Login.BackoffMs,
			Message: "must be non-negative",
		})
	}
	if c.Login.NavigationTimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "login.navigation_timeout_ms",
			Value:   c.Login.NavigationTimeoutMs,
			Message: "must be positive",
		})
	}

	return errors
}

// validateBrowser validates the BrowserConfig
func (c *Config) validateBrowser() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidEngines(), strings.ToLower(c.Browser.Engine)) {
		errors = append(errors, ValidationError{
			Field:   "browser.engine",
			Value:   c.Browser.Engine,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidEngines(), ", ")),
		})
	}
	if c.Browser.ViewportWidth <= 0 {
		errors = append(errors, ValidationError{
			Field:   "browser.viewport_width",
			Value:   c.Browser.ViewportWidth,
			Message: "must be positive",
		})
	}
	if c.Browser.ViewportHeight <= 0 {
		errors = append(errors, ValidationError{
			Field:   "browser.viewport_height",
			Value:   c.Browser.ViewportHeight,
			Message: "must be positive",
		})
	}
	if c.Browser.ActionTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "browser.action_timeout_ms",
			Value:   c.Browser.ActionTimeoutMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateRoles rejects role names outside the closed enumeration and
// entries without a username. Sorted iteration keeps error order stable.
func (c *Config) validateRoles() []ValidationError {
	var errors []ValidationError

	if len(c.Roles) == 0 {
		errors = append(errors, ValidationError{
			Field:   "roles",
			Value:   c.Roles,
			Message: "at least one role must be configured",
		})
		return errors
	}

	names := make([]string, 0, len(c.Roles))
	for name := range c.Roles {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if _, err := role.Parse(name); err != nil {
			errors = append(errors, ValidationError{
				Field:   "roles." + name,
				Value:   name,
				Message: fmt.Sprintf("unknown role, must be one of: %s", strings.Join(role.Names(), ", ")),
			})
			continue
		}
		if strings.TrimSpace(c.Roles[name].Username) == "" {
			errors = append(errors, ValidationError{
				Field:   "roles." + name + ".username",
				Value:   c.Roles[name].Username,
				Message: "cannot be empty",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
