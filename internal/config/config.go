package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for configuration fields.
const (
	DefaultChangelogFile    = "changelog.yaml"
	DefaultLockTimeout      = 5 * time.Second
	DefaultStatementTimeout = 30 * time.Second
	DefaultLockWait         = 10 * time.Second
	DefaultLogFormat        = "text"
	DefaultLogLevel         = "info"
	DefaultFormat           = "text"
)

// Config holds the application configuration loaded from file, environment, and flags.
type Config struct {
	DatabaseURL      string
	ChangelogFile    string
	LockTimeout      time.Duration
	StatementTimeout time.Duration
	// LockWait bounds how long a run waits for the changelog lock.
	LockWait time.Duration
	// LockStaleAfter lets a run reclaim a lock older than this. Zero disables it.
	LockStaleAfter time.Duration
	Contexts       []string
	LogFormat      string
	LogLevel       string
	Format         string
	MetricsFile    string
}

// yamlConfig is the raw YAML file representation with string durations.
type yamlConfig struct {
	DatabaseURL      string `yaml:"database_url"`
	ChangelogFile    string `yaml:"changelog_file"`
	LockTimeout      string `yaml:"lock_timeout"`
	StatementTimeout string `yaml:"statement_timeout"`
	LockWait         string `yaml:"lock_wait"`
	LockStaleAfter   string `yaml:"lock_stale_after"`
	Contexts         string `yaml:"contexts"`
	LogFormat        string `yaml:"log_format"`
	LogLevel         string `yaml:"log_level"`
	Format           string `yaml:"format"`
	MetricsFile      string `yaml:"metrics_file"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		ChangelogFile:    DefaultChangelogFile,
		LockTimeout:      DefaultLockTimeout,
		StatementTimeout: DefaultStatementTimeout,
		LockWait:         DefaultLockWait,
		LogFormat:        DefaultLogFormat,
		LogLevel:         DefaultLogLevel,
		Format:           DefaultFormat,
	}
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	setString(&cfg.DatabaseURL, raw.DatabaseURL)
	setString(&cfg.ChangelogFile, raw.ChangelogFile)
	setString(&cfg.LogFormat, raw.LogFormat)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.Format, raw.Format)
	setString(&cfg.MetricsFile, raw.MetricsFile)

	if raw.Contexts != "" {
		cfg.Contexts = SplitList(raw.Contexts)
	}

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"lock_timeout", raw.LockTimeout, &cfg.LockTimeout},
		{"statement_timeout", raw.StatementTimeout, &cfg.StatementTimeout},
		{"lock_wait", raw.LockWait, &cfg.LockWait},
		{"lock_stale_after", raw.LockStaleAfter, &cfg.LockStaleAfter},
	}

	for _, d := range durations {
		if err := setDuration(d.dst, d.key, d.val); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// MergeEnv overrides config fields from MIGRATE_* environment variables.
func MergeEnv(cfg *Config) error {
	setString(&cfg.DatabaseURL, os.Getenv("MIGRATE_DATABASE_URL"))
	setString(&cfg.ChangelogFile, os.Getenv("MIGRATE_CHANGELOG_FILE"))
	setString(&cfg.LogFormat, os.Getenv("MIGRATE_LOG_FORMAT"))
	setString(&cfg.LogLevel, os.Getenv("MIGRATE_LOG_LEVEL"))
	setString(&cfg.MetricsFile, os.Getenv("MIGRATE_METRICS_FILE"))

	if v := os.Getenv("MIGRATE_CONTEXTS"); v != "" {
		cfg.Contexts = SplitList(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"MIGRATE_LOCK_TIMEOUT", &cfg.LockTimeout},
		{"MIGRATE_STATEMENT_TIMEOUT", &cfg.StatementTimeout},
		{"MIGRATE_LOCK_WAIT", &cfg.LockWait},
		{"MIGRATE_LOCK_STALE_AFTER", &cfg.LockStaleAfter},
	}

	for _, d := range durations {
		if err := setDuration(d.dst, d.key, os.Getenv(d.key)); err != nil {
			return err
		}
	}

	return nil
}

// SplitList splits a comma separated list, trimming blanks and dropping empty items.
func SplitList(s string) []string {
	var out []string

	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parsing %s %q: %w", key, v, err)
	}

	if d < 0 {
		return fmt.Errorf("parsing %s %q: duration must not be negative", key, v)
	}

	*dst = d

	return nil
}
