//go:build integration

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/engine"
	"github.com/aqasim81/changelog-migrate/internal/migration"
)

const (
	postgresImage = "postgres:16-alpine"
	testDB        = "migrate_test"
	testUser      = "migrate"
	testPassword  = "migrate"
)

// SetupPostgresDSN starts a PostgreSQL 16 container and returns its URL.
// The container is terminated when the test completes.
func SetupPostgresDSN(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDB,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return "postgres://" + testUser + ":" + testPassword + "@" + host + ":" + port.Port() + "/" + testDB + "?sslmode=disable"
}

// SetupPostgres starts a container and returns an open database handle.
func SetupPostgres(t *testing.T) (database.DB, string) {
	t.Helper()

	dsn := SetupPostgresDSN(t)

	db, err := database.Open(context.Background(), dsn)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db, dsn
}

func newEngine(db database.DB, opts ...engine.Option) *engine.Engine {
	return engine.New(db, append([]engine.Option{engine.WithLogger(slog.New(slog.DiscardHandler))}, opts...)...)
}

func parseChangelog(t *testing.T, doc string) *migration.Changelog {
	t.Helper()

	cl, err := migration.Parse([]byte(doc), "changelog.yaml")
	require.NoError(t, err)

	return cl
}

// tableChangelog declares n changesets, each creating table t<i>.
func tableChangelog(t *testing.T, n int) *migration.Changelog {
	t.Helper()

	var b strings.Builder

	b.WriteString("databaseChangeLog:\n")

	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `  - changeSet:
      id: "%d"
      author: it
      changes:
        - createTable:
            tableName: t%d
            columns:
              - {name: id, type: INTEGER, constraints: {primaryKey: true, autoIncrement: true}}
              - {name: name, type: TEXT}
      rollback:
        - dropTable: {tableName: t%d}
`, i, i, i)
	}

	return parseChangelog(t, b.String())
}

func tableExists(t *testing.T, db database.DB, name string) bool {
	t.Helper()

	var exists bool
	require.NoError(t, database.QueryRow(context.Background(), db,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = ?)", []any{name}, &exists))

	return exists
}
