package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aqasim81/changelog-migrate/internal/config"
)

const version = "0.1.0"

// AppConfig holds the loaded configuration, set during PersistentPreRunE.
var AppConfig *config.Config //nolint:gochecknoglobals // standard Cobra pattern for shared config

// rootCmd is the base command for the migrate CLI.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "migrate",
	Version: version,
	Short:   "Changelog-driven database schema migrations",
	Long: `migrate applies and reverts the changesets declared in a YAML or JSON
changelog. Every run is recorded in the DATABASECHANGELOG table of the target
database, edited changesets are refused by checksum, and concurrent runs are
serialized by the DATABASECHANGELOGLOCK table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	f := rootCmd.PersistentFlags()
	f.String("config", "migrate.yml", "path to configuration file")
	f.String("database-url", "", "database URL (postgres://, mysql://, sqlite://)")
	f.String("changelog-file", "", "path to the changelog (.yaml, .yml or .json)")
	f.String("contexts", "", "comma separated contexts to run (default: all)")
	f.String("format", "", "output format (text, json)")
	f.String("log-format", "", "log format (text, json)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.Duration("lock-wait", 0, "how long to wait for the migration lock (0 = fail fast)")
	f.Duration("lock-stale-after", 0, "reclaim a migration lock older than this (0 = never)")
	f.String("metrics-file", "", "write run metrics to this Prometheus textfile")
}

// Execute runs the root command and returns the process exit code.
// Called from main.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return ExitCode(err)
	}

	return exitOK
}

// loadConfig loads configuration with precedence: flag > env > file.
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowMissing := !cmd.Flags().Changed("config")

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if err := config.MergeEnv(cfg); err != nil {
		return fmt.Errorf("loading configuration from environment: %w", err)
	}

	mergeFlags(cmd, cfg)

	AppConfig = cfg

	return nil
}

// mergeFlags overrides config with explicitly-set CLI flags.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	stringFlags := map[string]*string{
		"database-url":   &cfg.DatabaseURL,
		"changelog-file": &cfg.ChangelogFile,
		"format":         &cfg.Format,
		"log-format":     &cfg.LogFormat,
		"log-level":      &cfg.LogLevel,
		"metrics-file":   &cfg.MetricsFile,
	}

	for name, dst := range stringFlags {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}

	if flags.Changed("lock-wait") {
		cfg.LockWait, _ = flags.GetDuration("lock-wait")
	}

	if flags.Changed("lock-stale-after") {
		cfg.LockStaleAfter, _ = flags.GetDuration("lock-stale-after")
	}

	if flags.Changed("contexts") {
		v, _ := flags.GetString("contexts")
		cfg.Contexts = config.SplitList(v)
	}
}
