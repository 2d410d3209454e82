package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shopqa/authcache/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "authcache",
	Short: "Shared login session cache for parallel UI test workers",
	Long: `authcache logs each test role into the shop once and shares the resulting
browser session with every parallel worker through files in the auth
directory. A per-role file lock makes sure only one worker logs in when the
cached session is missing or expired.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./authcache.yaml or $HOME/.config/authcache/authcache.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Credentials usually live in a git-ignored .env next to the suite.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
		}
	}

	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("authcache")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AUTHCACHE")
	// e.g. AUTHCACHE_LOCK_STALE_MS for lock.stale_ms
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; defaults and env apply.
	_ = viper.ReadInConfig()
}
