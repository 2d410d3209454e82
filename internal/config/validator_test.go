package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "lock.retries",
		Value:   -1,
		Message: "must be non-negative",
	}

	expected := "lock.retries: must be non-negative (got: -1)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

// fieldsOf returns the Field of every validation error.
func fieldsOf(errs []ValidationError) []string {
	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	return fields
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		fields []string
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:   "relative base url",
			mutate: func(c *Config) { c.Site.BaseURL = "saucedemo.com" },
			fields: []string{"site.base_url"},
		},
		{
			name:   "empty url pattern",
			mutate: func(c *Config) { c.Site.AuthenticatedURLPattern = "" },
			fields: []string{"site.authenticated_url_pattern"},
		},
		{
			name:   "broken url pattern",
			mutate: func(c *Config) { c.Site.AuthenticatedURLPattern = "**/[inventory" },
			fields: []string{"site.authenticated_url_pattern"},
		},
		{
			name:   "blank selector",
			mutate: func(c *Config) { c.Site.Selectors.Submit = "  " },
			fields: []string{"site.selectors.submit"},
		},
		{
			name:   "empty auth dir",
			mutate: func(c *Config) { c.Paths.AuthDir = "" },
			fields: []string{"paths.auth_dir"},
		},
		{
			name:   "zero retries is valid",
			mutate: func(c *Config) { c.Lock.Retries = 0 },
		},
		{
			name:   "negative retries",
			mutate: func(c *Config) { c.Lock.Retries = -1 },
			fields: []string{"lock.retries"},
		},
		{
			name:   "max below min",
			mutate: func(c *Config) { c.Lock.MaxTimeoutMs = 50 },
			fields: []string{"lock.max_timeout_ms"},
		},
		{
			name:   "stale too small",
			mutate: func(c *Config) { c.Lock.StaleMs = 10 },
			fields: []string{"lock.stale_ms"},
		},
		{
			name:   "heartbeat not below stale",
			mutate: func(c *Config) { c.Lock.UpdateMs = 30000 },
			fields: []string{"lock.update_ms"},
		},
		{
			name:   "no login attempts",
			mutate: func(c *Config) { c.Login.MaxRetries = 0 },
			fields: []string{"login.max_retries"},
		},
		{
			name:   "zero navigation timeout",
			mutate: func(c *Config) { c.Login.NavigationTimeoutMs = 0 },
			fields: []string{"login.navigation_timeout_ms"},
		},
		{
			name:   "unknown engine",
			mutate: func(c *Config) { c.Browser.Engine = "netscape" },
			fields: []string{"browser.engine"},
		},
		{
			name:   "engine case insensitive",
			mutate: func(c *Config) { c.Browser.Engine = "Firefox" },
		},
		{
			name: "bad viewport",
			mutate: func(c *Config) {
				c.Browser.ViewportWidth = 0
				c.Browser.ViewportHeight = -1
			},
			fields: []string{"browser.viewport_width", "browser.viewport_height"},
		},
		{
			name:   "unknown role",
			mutate: func(c *Config) { c.Roles["admin"] = CredentialConfig{Username: "root"} },
			fields: []string{"roles.admin"},
		},
		{
			name: "role without username",
			mutate: func(c *Config) {
				c.Roles["problem"] = CredentialConfig{Password: "secret_sauce"}
			},
			fields: []string{"roles.problem.username"},
		},
		{
			name:   "no roles",
			mutate: func(c *Config) { c.Roles = nil },
			fields: []string{"roles"},
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
			fields: []string{"logging.level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			got := fieldsOf(cfg.Validate())
			if len(got) != len(tt.fields) {
				t.Fatalf("Validate() fields = %v, want %v", got, tt.fields)
			}
			for i := range got {
				if got[i] != tt.fields[i] {
					t.Errorf("Validate()[%d].Field = %q, want %q", i, got[i], tt.fields[i])
				}
			}
		})
	}
}
