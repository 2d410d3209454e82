package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shopqa/authcache/internal/role"
)

// Config represents the complete authcache configuration
type Config struct {
	Site    SiteConfig                  `mapstructure:"site"`
	Paths   PathsConfig                 `mapstructure:"paths"`
	Lock    LockConfig                  `mapstructure:"lock"`
	Login   LoginConfig                 `mapstructure:"login"`
	Browser BrowserConfig               `mapstructure:"browser"`
	Roles   map[string]CredentialConfig `mapstructure:"roles"`
	Logging LoggingConfig               `mapstructure:"logging"`
	Metrics MetricsConfig               `mapstructure:"metrics"`
}

// SiteConfig describes the application under test
type SiteConfig struct {
	// BaseURL is the origin of the shop, e.g. "https://www.saucedemo.com"
	BaseURL string `mapstructure:"base_url"`
	// LoginPath is the path of the login form relative to BaseURL (default: "/")
	LoginPath string `mapstructure:"login_path"`
	// AuthenticatedPath is a page only reachable when logged in (default: "/inventory.html")
	AuthenticatedPath string `mapstructure:"authenticated_path"`
	// AuthenticatedURLPattern is a glob the page URL must match after login (default: "**/inventory.html")
	AuthenticatedURLPattern string `mapstructure:"authenticated_url_pattern"`
	// Selectors locate the login form and the authenticated-only marker
	Selectors SelectorConfig `mapstructure:"selectors"`
}

// SelectorConfig holds the CSS selectors used by the login flow
type SelectorConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Submit   string `mapstructure:"submit"`
	// Error is the on-page error indicator shown when credentials are refused
	Error string `mapstructure:"error"`
	// AuthenticatedMarker is an element only rendered for logged-in users
	AuthenticatedMarker string `mapstructure:"authenticated_marker"`
}

// PathsConfig controls where authcache stores data
type PathsConfig struct {
	// AuthDir holds one <role>.json session file per role plus lock markers (default: "auth")
	AuthDir string `mapstructure:"auth_dir"`
	// DiagnosticsDir holds auth.log and lock-metrics.json (default: "diagnostics")
	DiagnosticsDir string `mapstructure:"diagnostics_dir"`
}

// LockConfig tunes the cross-process session lock
type LockConfig struct {
	// Retries is the number of retries after the first attempt (default: 10, 0 = fail fast)
	Retries int `mapstructure:"retries"`
	// MinTimeoutMs is the first backoff interval in milliseconds (default: 100)
	MinTimeoutMs int `mapstructure:"min_timeout_ms"`
	// MaxTimeoutMs caps the backoff interval in milliseconds (default: 2000)
	MaxTimeoutMs int `mapstructure:"max_timeout_ms"`
	// StaleMs is the marker age after which a lock is considered abandoned (default: 30000)
	StaleMs int `mapstructure:"stale_ms"`
	// UpdateMs is the heartbeat interval while a lock is held (default: 0 = stale_ms/2)
	UpdateMs int `mapstructure:"update_ms"`
}

// LoginConfig tunes the UI login flow
type LoginConfig struct {
	// MaxRetries is the total number of login attempts (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffMs is the fixed delay between attempts in milliseconds (default: 2000)
	BackoffMs int `mapstructure:"backoff_ms"`
	// NavigationTimeoutMs bounds page loads and the wait for the authenticated URL (default: 10000)
	NavigationTimeoutMs int `mapstructure:"navigation_timeout_ms"`
}

// BrowserConfig controls the playwright browser
type BrowserConfig struct {
	// Engine is one of "chromium", "firefox", "webkit" (default: "chromium")
	Engine   string `mapstructure:"engine"`
	Headless bool   `mapstructure:"headless"`
	// ViewportWidth and ViewportHeight size every new context (default: 1920x1080)
	ViewportWidth  int `mapstructure:"viewport_width"`
	ViewportHeight int `mapstructure:"viewport_height"`
	// ActionTimeoutMs is the default timeout for clicks and fills (default: 15000)
	ActionTimeoutMs int `mapstructure:"action_timeout_ms"`
}

// CredentialConfig is one entry of the roles table
type CredentialConfig struct {
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Description string `mapstructure:"description"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logs are written to <diagnostics_dir>/auth.log (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// MetricsConfig controls lock metric collection
type MetricsConfig struct {
	// Enabled records lock timings into <diagnostics_dir>/lock-metrics.json (default: true)
	Enabled bool `mapstructure:"enabled"`
}

// defaultPassword is the shared password of the public demo shop accounts.
const defaultPassword = "secret_sauce"

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:                 "https://www.saucedemo.com",
			LoginPath:               "/",
			AuthenticatedPath:       "/inventory.html",
			AuthenticatedURLPattern: "**/inventory.html",
			Selectors: SelectorConfig{
				Username:            "#user-name",
				Password:            "#password",
				Submit:              "#login-button",
				Error:               `[data-test="error"]`,
				AuthenticatedMarker: ".inventory_list",
			},
		},
		Paths: PathsConfig{
			AuthDir:        "auth",
			DiagnosticsDir: "diagnostics",
		},
		Lock: LockConfig{
			Retries:      10,
			MinTimeoutMs: 100,
			MaxTimeoutMs: 2000,
			StaleMs:      30000,
			UpdateMs:     0, // Derived from StaleMs
		},
		Login: LoginConfig{
			MaxRetries:          3,
			BackoffMs:           2000,
			NavigationTimeoutMs: 10000,
		},
		Browser: BrowserConfig{
			Engine:          "chromium",
			Headless:        true,
			ViewportWidth:   1920,
			ViewportHeight:  1080,
			ActionTimeoutMs: 15000,
		},
		Roles: map[string]CredentialConfig{
			string(role.Standard): {
				Username:    "standard_user",
				Password:    defaultPassword,
				Description: "Standard user with full access",
			},
			string(role.LockedOut): {
				Username:    "locked_out_user",
				Password:    defaultPassword,
				Description: "User that has been locked out",
			},
			string(role.Problem): {
				Username:    "problem_user",
				Password:    defaultPassword,
				Description: "User that experiences UI problems",
			},
			string(role.PerformanceGlitch): {
				Username:    "performance_glitch_user",
				Password:    defaultPassword,
				Description: "User that experiences slow responses",
			},
			string(role.Error): {
				Username:    "error_user",
				Password:    defaultPassword,
				Description: "User that triggers errors on some actions",
			},
			string(role.Visual): {
				Username:    "visual_user",
				Password:    defaultPassword,
				Description: "User that sees visual regressions",
			},
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoginURL returns the absolute URL of the login form.
func (s *SiteConfig) LoginURL() string {
	return joinURL(s.BaseURL, s.LoginPath)
}

// AuthenticatedURL returns the absolute URL of the authenticated-only page.
func (s *SiteConfig) AuthenticatedURL() string {
	return joinURL(s.BaseURL, s.AuthenticatedPath)
}

func joinURL(base, path string) string {
	u, err := url.Parse(base)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return u.ResolveReference(ref).String()
}

// MinTimeout returns the first backoff interval
func (c *LockConfig) MinTimeout() time.Duration {
	return time.Duration(c.MinTimeoutMs) * time.Millisecond
}

// MaxTimeout returns the backoff cap
func (c *LockConfig) MaxTimeout() time.Duration {
	return time.Duration(c.MaxTimeoutMs) * time.Millisecond
}

// Stale returns the staleness threshold
func (c *LockConfig) Stale() time.Duration {
	return time.Duration(c.StaleMs) * time.Millisecond
}

// Update returns the heartbeat interval, defaulting to half the stale threshold
func (c *LockConfig) Update() time.Duration {
	if c.UpdateMs <= 0 {
		return c.Stale() / 2
	}
	return time.Duration(c.UpdateMs) * time.Millisecond
}

// Backoff returns the fixed delay between login attempts
func (c *LoginConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMs) * time.Millisecond
}

// NavigationTimeout returns the page load timeout
func (c *LoginConfig) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// ActionTimeout returns the default action timeout
func (c *BrowserConfig) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutMs) * time.Millisecond
}

// RoleDirectory converts the roles table into a role.Directory.
// Unknown role names are rejected.
func (c *Config) RoleDirectory() (role.Directory, error) {
	dir := make(role.Directory, len(c.Roles))
	for name, creds := range c.Roles {
		r, err := role.Parse(name)
		if err != nil {
			return nil, err
		}
		dir[r] = role.Credentials{
			Username:    creds.Username,
			Password:    creds.Password,
			Description: creds.Description,
		}
	}
	return dir, nil
}

// ResolveAuthDir returns the session directory resolved against baseDir.
func (p *PathsConfig) ResolveAuthDir(baseDir string) string {
	return resolvePath(baseDir, p.AuthDir, "auth")
}

// ResolveDiagnosticsDir returns the diagnostics directory resolved against baseDir.
func (p *PathsConfig) ResolveDiagnosticsDir(baseDir string) string {
	return resolvePath(baseDir, p.DiagnosticsDir, "diagnostics")
}

// resolvePath expands ~ and resolves relative paths against baseDir.
func resolvePath(baseDir, path, fallback string) string {
	if path == "" {
		path = fallback
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Site defaults
	viper.SetDefault("site.base_url", defaults.Site.BaseURL)
	viper.SetDefault("site.login_path", defaults.Site.LoginPath)
	viper.SetDefault("site.authenticated_path", defaults.Site.AuthenticatedPath)
	viper.SetDefault("site.authenticated_url_pattern", defaults.Site.AuthenticatedURLPattern)
	viper.SetDefault("site.selectors.username", defaults.Site.Selectors.Username)
	viper.SetDefault("site.selectors.password", defaults.Site.Selectors.Password)
	viper.SetDefault("site.selectors.submit", defaults.Site.Selectors.Submit)
	viper.SetDefault("site.selectors.error", defaults.Site.Selectors.Error)
	viper.SetDefault("site.selectors.authenticated_marker", defaults.Site.Selectors.AuthenticatedMarker)

	// Paths defaults
	viper.SetDefault("paths.auth_dir", defaults.Paths.AuthDir)
	viper.SetDefault("paths.diagnostics_dir", defaults.Paths.DiagnosticsDir)

	// Lock defaults
	viper.SetDefault("lock.retries", defaults.Lock.Retries)
	viper.SetDefault("lock.min_timeout_ms", defaults.Lock.MinTimeoutMs)
	viper.SetDefault("lock.max_timeout_ms", defaults.Lock.MaxTimeoutMs)
	viper.SetDefault("lock.stale_ms", defaults.Lock.StaleMs)
	viper.SetDefault("lock.update_ms", defaults.Lock.UpdateMs)

	// Login defaults
	viper.SetDefault("login.max_retries", defaults.Login.MaxRetries)
	viper.SetDefault("login.backoff_ms", defaults.Login.BackoffMs)
	viper.SetDefault("login.navigation_timeout_ms", defaults.Login.NavigationTimeoutMs)

	// Browser defaults
	viper.SetDefault("browser.engine", defaults.Browser.Engine)
	viper.SetDefault("browser.headless", defaults.Browser.Headless)
	viper.SetDefault("browser.viewport_width", defaults.Browser.ViewportWidth)
	viper.SetDefault("browser.viewport_height", defaults.Browser.ViewportHeight)
	viper.SetDefault("browser.action_timeout_ms", defaults.Browser.ActionTimeoutMs)

	// Role defaults, one key per field so AUTHCACHE_ROLES_<ROLE>_PASSWORD overrides work
	for name, creds := range defaults.Roles {
		viper.SetDefault("roles."+name+".username", creds.Username)
		viper.SetDefault("roles."+name+".password", creds.Password)
		viper.SetDefault("roles."+name+".description", creds.Description)
	}

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "authcache")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".authcache"
	}
	return filepath.Join(home, ".config", "authcache")
}

// ConfigFile returns the path to the user-level config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "authcache.yaml")
}
