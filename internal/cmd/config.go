package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shopqa/authcache/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View authcache configuration",
	Long: `View authcache configuration.

Without arguments, displays the effective configuration with passwords
masked. Use subcommands to create a config file or locate it.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default authcache.yaml in the current directory with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(w, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(w, "Config file: (none - using defaults)")
	}
	fmt.Fprintln(w)
	printConfig(w, cfg)
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "site:")
	fmt.Fprintf(w, "  base_url: %s\n", cfg.Site.BaseURL)
	fmt.Fprintf(w, "  login_url: %s\n", cfg.Site.LoginURL())
	fmt.Fprintf(w, "  authenticated_url: %s\n", cfg.Site.AuthenticatedURL())
	fmt.Fprintf(w, "  authenticated_url_pattern: %s\n", cfg.Site.AuthenticatedURLPattern)

	fmt.Fprintln(w, "paths:")
	fmt.Fprintf(w, "  auth_dir: %s\n", cfg.Paths.AuthDir)
	fmt.Fprintf(w, "  diagnostics_dir: %s\n", cfg.Paths.DiagnosticsDir)

	fmt.Fprintln(w, "lock:")
	fmt.Fprintf(w, "  retries: %d\n", cfg.Lock.Retries)
	fmt.Fprintf(w, "  min_timeout: %s\n", cfg.Lock.MinTimeout())
	fmt.Fprintf(w, "  max_timeout: %s\n", cfg.Lock.MaxTimeout())
	fmt.Fprintf(w, "  stale: %s\n", cfg.Lock.Stale())
	fmt.Fprintf(w, "  update: %s\n", cfg.Lock.Update())

	fmt.Fprintln(w, "login:")
	fmt.Fprintf(w, "  max_retries: %d\n", cfg.Login.MaxRetries)
	fmt.Fprintf(w, "  backoff: %s\n", cfg.Login.Backoff())
	fmt.Fprintf(w, "  navigation_timeout: %s\n", cfg.Login.NavigationTimeout())

	fmt.Fprintln(w, "browser:")
	fmt.Fprintf(w, "  engine: %s\n", cfg.Browser.Engine)
	fmt.Fprintf(w, "  headless: %v\n", cfg.Browser.Headless)
	fmt.Fprintf(w, "  viewport: %dx%d\n", cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight)

	fmt.Fprintln(w, "roles:")
	names := make([]string, 0, len(cfg.Roles))
	for name := range cfg.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cred := cfg.Roles[name]
		fmt.Fprintf(w, "  %s: %s / %s\n", name, cred.Username, maskSecret(cred.Password))
	}

	fmt.Fprintln(w, "logging:")
	fmt.Fprintf(w, "  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Fprintf(w, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintln(w, "metrics:")
	fmt.Fprintf(w, "  enabled: %v\n", cfg.Metrics.Enabled)
}

func maskSecret(s string) string {
	if s == "" {
		return "(empty)"
	}
	return strings.Repeat("*", min(len(s), 8))
}

const defaultConfigContent = `# authcache configuration
# Every key can be overridden with an AUTHCACHE_ environment variable,
# e.g. AUTHCACHE_LOCK_RETRIES=20. Variables in ./.env are loaded first.

site:
  base_url: https://www.saucedemo.com
  login_path: /
  authenticated_path: /inventory.html
  # Glob the page URL must match once logged in
  authenticated_url_pattern: "**/inventory.html"
  selectors:
    username: "#user-name"
    password: "#password"
    submit: "#login-button"
    error: '[data-test="error"]'
    authenticated_marker: .inventory_list

paths:
  # One <role>.json session file per role, plus lock markers
  auth_dir: auth
  # auth.log and lock-metrics.json
  diagnostics_dir: diagnostics

lock:
  # Retries after the first attempt (0 = fail on first contention)
  retries: 10
  min_timeout_ms: 100
  max_timeout_ms: 2000
  # A lock older than this is considered abandoned
  stale_ms: 30000

login:
  # Total UI login attempts per acquisition
  max_retries: 3
  backoff_ms: 2000
  navigation_timeout_ms: 10000

browser:
  # chromium, firefox or webkit
  engine: chromium
  headless: true
  viewport_width: 1920
  viewport_height: 1080
  action_timeout_ms: 15000

logging:
  enabled: true
  # debug, info, warn or error
  level: info

metrics:
  enabled: true
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := "authcache.yaml"
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(w, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(w, "Active config: (none - using defaults)")
	}

	fmt.Fprintln(w, "\nSearch paths:")
	fmt.Fprintf(w, "  1. %s\n", filepath.Join(".", "authcache.yaml"))
	fmt.Fprintf(w, "  2. %s\n", config.ConfigFile())
	fmt.Fprintln(w, "\nEnvironment variables: AUTHCACHE_* (e.g., AUTHCACHE_LOCK_STALE_MS)")
	return nil
}
