package postgresdb_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb/pgtest"
	"github.com/jrazmi/todokeeper/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// openDatabase creates name on the test server and opens a small pool on it.
func openDatabase(t *testing.T, db *pgtest.Database, name string, maxConns int) *postgresdb.Pool {
	t.Helper()
	ctx := context.Background()

	dbURL := pgtest.WithDatabase(t, db.URL, name)
	_, err := postgresdb.CreateDatabase(ctx, dbURL, discard)
	require.NoError(t, err)

	pool, err := postgresdb.Open(ctx, postgresdb.Options{
		DatabaseURL:    dbURL,
		MaxConns:       maxConns,
		AcquireTimeout: 300 * time.Millisecond,
	}, postgresdb.WithLogger(discard))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestIntegration(t *testing.T) {
	db := pgtest.New(t)

	t.Run("pool_exhausted", func(t *testing.T) {
		pool := openDatabase(t, db, "todokeeper_exhausted", 1)
		ctx := context.Background()

		held, err := pool.Acquire(ctx)
		require.NoError(t, err)

		start := time.Now()
		_, err = pool.Acquire(ctx)
		require.ErrorIs(t, err, postgresdb.ErrPoolExhausted)
		assert.True(t, postgresdb.IsRetryable(err))
		assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)

		_, err = pool.Exec(ctx, "SELECT 1")
		require.ErrorIs(t, err, postgresdb.ErrPoolExhausted)

		held.Release()

		_, err = pool.Exec(ctx, "SELECT 1")
		assert.NoError(t, err)
	})

	t.Run("caller_cancel_is_not_exhaustion", func(t *testing.T) {
		pool := openDatabase(t, db, "todokeeper_cancel", 1)

		held, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		defer held.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err = pool.Acquire(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, postgresdb.ErrPoolExhausted)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("rows_release_their_connection", func(t *testing.T) {
		pool := openDatabase(t, db, "todokeeper_rows", 1)
		ctx := context.Background()

		for range 3 {
			rows, err := pool.Query(ctx, "SELECT generate_series(1, 3)")
			require.NoError(t, err)
			n, err := pgx.CollectRows(rows, pgx.RowTo[int32])
			require.NoError(t, err)
			assert.Equal(t, []int32{1, 2, 3}, n)
		}

		for range 3 {
			var one int
			require.NoError(t, pool.QueryRow(ctx, "SELECT 1").Scan(&one))
		}

		err := postgresdb.InTx(ctx, pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, "SELECT 1")
			return err
		})
		require.NoError(t, err)

		assert.Equal(t, int32(0), pool.Stat().AcquiredConns())
	})

	t.Run("broken_connection_is_discarded", func(t *testing.T) {
		pool := openDatabase(t, db, "todokeeper_broken", 1)
		ctx := context.Background()

		var pid uint32
		err := pool.WithConn(ctx, func(conn *pgxpool.Conn) error {
			pid = conn.Conn().PgConn().PID()
			_, err := db.Pool.Exec(ctx, "SELECT pg_terminate_backend($1)", int32(pid))
			if err != nil {
				return err
			}
			require.Eventually(t, func() bool {
				_, err := conn.Exec(ctx, "SELECT 1")
				return err != nil
			}, 5*time.Second, 50*time.Millisecond)
			return nil
		})
		require.NoError(t, err)

		var next uint32
		err = pool.WithConn(ctx, func(conn *pgxpool.Conn) error {
			next = conn.Conn().PgConn().PID()
			_, err := conn.Exec(ctx, "SELECT 1")
			return err
		})
		require.NoError(t, err)
		assert.NotEqual(t, pid, next)
	})

	t.Run("create_database_is_idempotent", func(t *testing.T) {
		ctx := context.Background()
		dbURL := pgtest.WithDatabase(t, db.URL, "todokeeper_provision")

		var created atomic.Int32
		g, gctx := errgroup.WithContext(ctx)
		for range 4 {
			g.Go(func() error {
				ok, err := postgresdb.CreateDatabase(gctx, dbURL, discard)
				if ok {
					created.Add(1)
				}
				return err
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), created.Load())

		again, err := postgresdb.CreateDatabase(ctx, dbURL, discard)
		require.NoError(t, err)
		assert.False(t, again)
	})

	t.Run("bad_credentials", func(t *testing.T) {
		ctx := context.Background()
		u, err := url.Parse(db.URL)
		require.NoError(t, err)
		u.User = url.UserPassword(u.User.Username(), "wrong")

		_, err = postgresdb.Open(ctx, postgresdb.Options{
			DatabaseURL: u.String(),
			MaxConns:    1,
		}, postgresdb.WithLogger(discard), postgresdb.WithConnectRetries(5, 10*time.Millisecond))

		var perr *postgresdb.ProvisioningError
		assert.ErrorAs(t, err, &perr)
	})

	t.Run("migrations_are_idempotent", func(t *testing.T) {
		ctx := context.Background()

		report, err := postgresdb.Migrate(ctx, db.Pool, discard)
		require.NoError(t, err)
		assert.Empty(t, report.Applied)

		all, err := postgresdb.LoadMigrations(schema.MigrationsFS, schema.MigrationsDir)
		require.NoError(t, err)
		assert.Len(t, report.Skipped, len(all))
	})

	t.Run("concurrent_migrations", func(t *testing.T) {
		pool := openDatabase(t, db, "todokeeper_concurrent", 10)

		all, err := postgresdb.LoadMigrations(schema.MigrationsFS, schema.MigrationsDir)
		require.NoError(t, err)

		reports := make([]postgresdb.MigrationReport, 4)
		ctx := context.Background()
		g, gctx := errgroup.WithContext(ctx)
		for i := range reports {
			g.Go(func() error {
				var err error
				reports[i], err = postgresdb.Migrate(gctx, pool, discard)
				return err
			})
		}
		require.NoError(t, g.Wait())

		applied := make(map[string]int)
		for _, r := range reports {
			for _, v := range r.Applied {
				applied[v]++
			}
		}
		require.Len(t, applied, len(all))
		for _, m := range all {
			assert.Equal(t, 1, applied[m.Version], m.Version)
		}

		var count int
		require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, len(all), count)
	})

	t.Run("failing_migration_rolls_back", func(t *testing.T) {
		pool := openDatabase(t, db, "todokeeper_failing", 2)
		ctx := context.Background()

		fsys := fstest.MapFS{
			"m/0001_create_a.sql": {Data: []byte("CREATE TABLE a (id int);")},
			"m/0002_create_b.sql": {Data: []byte("CREATE TABLE b (id int); CREATE TABL c (id int);")},
			"m/0003_create_d.sql": {Data: []byte("CREATE TABLE d (id int);")},
		}

		report, err := postgresdb.NewMigrator(pool, fsys, "m", discard).Run(ctx)
		var merr *postgresdb.MigrationError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, "0002_create_b", merr.Version)
		assert.Equal(t, []string{"0001_create_a"}, report.Applied)

		var exists bool
		require.NoError(t, pool.QueryRow(ctx, "SELECT to_regclass('b') IS NOT NULL").Scan(&exists))
		assert.False(t, exists, "partial migration left table b behind")

		fsys["m/0002_create_b.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE b (id int); CREATE TABLE c (id int);")}
		report, err = postgresdb.NewMigrator(pool, fsys, "m", discard).Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"0002_create_b", "0003_create_d"}, report.Applied)

		fsys["m/0001_create_a.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id bigint);")}
		_, err = postgresdb.NewMigrator(pool, fsys, "m", discard).Run(ctx)
		assert.True(t, errors.Is(err, postgresdb.ErrChecksumMismatch))
	})
}
