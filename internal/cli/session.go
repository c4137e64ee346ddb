package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqasim81/changelog-migrate/internal/config"
	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/engine"
	"github.com/aqasim81/changelog-migrate/internal/lock"
	"github.com/aqasim81/changelog-migrate/internal/logging"
	"github.com/aqasim81/changelog-migrate/internal/metrics"
	"github.com/aqasim81/changelog-migrate/internal/migration"
)

// errDatabaseURLRequired is returned when no database URL is configured.
var errDatabaseURLRequired = errors.New(
	"database URL is required (set --database-url, MIGRATE_DATABASE_URL, or database_url in config)",
)

// session is one connection to the target database for the duration of a command.
type session struct {
	cfg     *config.Config
	db      database.DB
	engine  *engine.Engine
	metrics *metrics.Recorder
	logger  *slog.Logger
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}

// withSession connects, runs fn and then writes metrics and disconnects.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error, opts ...engine.Option) (err error) {
	cfg := AppConfig

	if cfg.DatabaseURL == "" {
		return errDatabaseURLRequired
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx := logging.ContextWithLogger(commandContext(cmd), logger)

	logger.DebugContext(ctx, "connecting", "database", config.RedactURL(cfg.DatabaseURL))

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", config.RedactURL(cfg.DatabaseURL), err)
	}

	s := &session{cfg: cfg, db: db, logger: logger}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithContexts(cfg.Contexts),
		engine.WithTimeouts(cfg.LockTimeout, cfg.StatementTimeout),
		engine.WithLockOptions(lock.WithWait(cfg.LockWait), lock.WithStaleAfter(cfg.LockStaleAfter)),
	}

	if cfg.MetricsFile != "" {
		s.metrics = metrics.New()
		engineOpts = append(engineOpts, engine.WithMetrics(s.metrics))
	}

	s.engine = engine.New(db, append(engineOpts, opts...)...)

	defer func() {
		err = errors.Join(err, s.close())
	}()

	return fn(ctx, s)
}

func (s *session) close() error {
	var errs []error

	if err := s.metrics.WriteToTextfile(s.cfg.MetricsFile, time.Now()); err != nil {
		errs = append(errs, err)
	}

	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	return errors.Join(errs...)
}

func loadChangelog(cfg *config.Config) (*migration.Changelog, error) {
	cl, err := migration.LoadFile(cfg.ChangelogFile)
	if err != nil {
		return nil, fmt.Errorf("loading changelog: %w", err)
	}

	return cl, nil
}
