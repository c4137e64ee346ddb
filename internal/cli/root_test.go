package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/changelog-migrate/internal/config"
)

// newFlagCmd returns a command carrying fresh copies of the global flags.
func newFlagCmd() *cobra.Command {
	cmd := &cobra.Command{}
	f := cmd.Flags()
	f.String("config", "migrate.yml", "")
	f.String("database-url", "", "")
	f.String("changelog-file", "", "")
	f.String("contexts", "", "")
	f.String("format", "", "")
	f.String("log-format", "", "")
	f.String("log-level", "", "")
	f.Duration("lock-wait", 0, "")
	f.Duration("lock-stale-after", 0, "")
	f.String("metrics-file", "", "")

	return cmd
}

func TestMergeFlags_overridesConfig(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cmd := newFlagCmd()

	require.NoError(t, cmd.Flags().Set("database-url", "postgres://test:5432/db"))
	require.NoError(t, cmd.Flags().Set("changelog-file", "/custom/changelog.yaml"))
	require.NoError(t, cmd.Flags().Set("contexts", "dev,test"))
	require.NoError(t, cmd.Flags().Set("format", "json"))
	require.NoError(t, cmd.Flags().Set("lock-wait", "0s"))
	require.NoError(t, cmd.Flags().Set("lock-stale-after", "15m"))

	mergeFlags(cmd, cfg)

	assert.Equal(t, "postgres://test:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "/custom/changelog.yaml", cfg.ChangelogFile)
	assert.Equal(t, []string{"dev", "test"}, cfg.Contexts)
	assert.Equal(t, "json", cfg.Format)
	assert.Zero(t, cfg.LockWait)
	assert.Equal(t, 15*time.Minute, cfg.LockStaleAfter)
}

func TestMergeFlags_unchangedFlags_preserveConfig(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.DatabaseURL = "postgres://original:5432/db"
	cfg.ChangelogFile = "/original/changelog.yaml"

	mergeFlags(newFlagCmd(), cfg)

	assert.Equal(t, "postgres://original:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "/original/changelog.yaml", cfg.ChangelogFile)
	assert.Equal(t, config.DefaultLockWait, cfg.LockWait)
}

func TestLoadConfig_missingFile_usesDefaults(t *testing.T) { // not parallel: mutates global AppConfig
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	cmd := newFlagCmd()
	require.NoError(t, cmd.Flags().Set("config", "nonexistent.yml"))
	// An explicitly named config file must exist.
	require.Error(t, loadConfig(cmd))

	require.NoError(t, loadConfig(newFlagCmd()))
	require.NotNil(t, AppConfig)
	assert.Equal(t, config.DefaultChangelogFile, AppConfig.ChangelogFile)
	assert.Equal(t, config.DefaultLockWait, AppConfig.LockWait)
}

func TestLoadConfig_precedence(t *testing.T) { // not parallel: mutates global AppConfig and env
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	cfgPath := filepath.Join(t.TempDir(), "migrate.yml")
	yamlContent := "changelog_file: /from/yaml.yaml\nlock_wait: 1m\nlog_level: warn\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0o600))

	t.Setenv("MIGRATE_LOCK_WAIT", "2m")
	t.Setenv("MIGRATE_LOG_LEVEL", "debug")

	cmd := newFlagCmd()
	require.NoError(t, cmd.Flags().Set("config", cfgPath))
	require.NoError(t, cmd.Flags().Set("log-level", "error"))

	require.NoError(t, loadConfig(cmd))
	assert.Equal(t, "/from/yaml.yaml", AppConfig.ChangelogFile)
	assert.Equal(t, 2*time.Minute, AppConfig.LockWait)
	assert.Equal(t, "error", AppConfig.LogLevel)
}

func TestLoadConfig_invalidFile_returnsError(t *testing.T) { // not parallel: mutates global AppConfig
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	cfgPath := filepath.Join(t.TempDir(), "bad-config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("lock_wait: [unclosed"), 0o600))

	cmd := newFlagCmd()
	require.NoError(t, cmd.Flags().Set("config", cfgPath))

	err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}

func TestLoadConfig_invalidEnvDuration_returnsError(t *testing.T) { // not parallel: mutates env
	t.Setenv("MIGRATE_LOCK_WAIT", "forever")

	err := loadConfig(newFlagCmd())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIGRATE_LOCK_WAIT")
}
