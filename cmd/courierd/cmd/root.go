// Package cmd holds the courierd command tree.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/courier/extension"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "courierd",
	Short: "Courier - signed webhook delivery for the chat gateway",
	Long: `courierd serves the courier admin API and runs the delivery worker.

Configuration is read from a YAML file (--config) and from COURIER_
environment variables, e.g. COURIER_CONCURRENCY=20 or
COURIER_POLL_INTERVAL=2s.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./courier.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads the config file and environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("courier")
	}

	viper.SetEnvPrefix("COURIER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key so AutomaticEnv can see it during
// Unmarshal.
func setDefaults() {
	d := extension.DefaultConfig()

	viper.SetDefault("concurrency", d.Concurrency)
	viper.SetDefault("poll_interval", d.PollInterval)
	viper.SetDefault("batch_size", d.BatchSize)
	viper.SetDefault("claim_lease", d.ClaimLease)
	viper.SetDefault("default_timeout", d.DefaultTimeout)
	viper.SetDefault("default_retry_limit", d.DefaultRetryLimit)
	viper.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	viper.SetDefault("max_response_body", d.MaxResponseBody)
	viper.SetDefault("test_rate", d.TestRate)
	viper.SetDefault("test_burst", d.TestBurst)
	viper.SetDefault("strict_event_types", d.StrictEventTypes)
	viper.SetDefault("base_path", d.BasePath)
	viper.SetDefault("disable_routes", d.DisableRoutes)
	viper.SetDefault("disable_migrate", d.DisableMigrate)
	viper.SetDefault("store_driver", d.StoreDriver)
	viper.SetDefault("addr", ":8080")
}

func loadConfig() (extension.Config, error) {
	cfg := extension.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
