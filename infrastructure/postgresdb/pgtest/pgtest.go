// Package pgtest starts a throwaway PostgreSQL server for integration tests.
package pgtest

import (
	"context"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	image        = "postgres:15-alpine"
	databaseName = "todokeeper_test"
)

// Database is a migrated database inside a container owned by one test.
type Database struct {
	URL  string
	Pool *postgresdb.Pool
}

// New starts a container, creates the todokeeper database, migrates it and
// opens a pool. The test is skipped with -short or when Docker is not
// available. Everything is torn down when the test ends.
func New(t *testing.T) *Database {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("postgres"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	adminURL, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dbURL := WithDatabase(t, adminURL, databaseName)
	log := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	_, err = postgresdb.CreateDatabase(ctx, dbURL, log)
	require.NoError(t, err)

	pool, err := postgresdb.Open(ctx, postgresdb.Options{
		DatabaseURL:    dbURL,
		MaxConns:       10,
		MinConns:       1,
		AcquireTimeout: 5 * time.Second,
		ConnectRetries: 3,
	}, postgresdb.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = postgresdb.Migrate(ctx, pool, log)
	require.NoError(t, err)

	return &Database{URL: dbURL, Pool: pool}
}

// WithDatabase returns databaseURL pointing at another database.
func WithDatabase(t *testing.T, databaseURL, name string) string {
	t.Helper()

	u, err := url.Parse(databaseURL)
	require.NoError(t, err)
	u.Path = "/" + name
	return u.String()
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
