package postgresdb

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jrazmi/todokeeper/schema"
)

// ErrChecksumMismatch means an applied migration file was edited afterwards.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// migrationLockKey serialises concurrent migrators on one database.
const migrationLockKey int64 = 0x746f646f6b656570

var migrationFileName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.sql$`)

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Migration is one forward-only SQL script.
type Migration struct {
	Number   int
	Version  string // file name without extension, e.g. 0001_create_todos
	Checksum string
	SQL      string
}

// MigrationReport lists what a run did, in version order.
type MigrationReport struct {
	Applied []string
	Skipped []string
}

// MigrationState describes one known migration and whether it ran.
type MigrationState struct {
	Version   string
	Applied   bool
	AppliedAt time.Time
	Modified  bool
}

type appliedMigration struct {
	Version   string    `db:"version"`
	Checksum  string    `db:"checksum"`
	AppliedAt time.Time `db:"applied_at"`
}

// Migrator applies the NNNN_name.sql scripts of a directory in version order.
// Each script runs in its own transaction together with its bookkeeping row
// in schema_migrations, so a script is either fully applied and recorded or
// not at all. There are no down migrations.
type Migrator struct {
	db   DB
	fsys fs.FS
	dir  string
	log  *slog.Logger
}

// NewMigrator builds a migrator over the scripts in dir.
func NewMigrator(db DB, fsys fs.FS, dir string, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{db: db, fsys: fsys, dir: dir, log: log}
}

// Migrate runs all pending migrations from schema/pgmigrations/*.sql files.
func Migrate(ctx context.Context, pool *Pool, log *slog.Logger) (MigrationReport, error) {
	if err := StatusCheck(ctx, pool); err != nil {
		return MigrationReport{}, &MigrationError{Err: fmt.Errorf("status check database: %w", err)}
	}
	return NewMigrator(pool, schema.MigrationsFS, schema.MigrationsDir, log).Run(ctx)
}

// Run applies every pending migration. Applied migrations are never run
// again; their checksum is compared with the file instead. The first failing
// script is rolled back and stops the run with *MigrationError.
func (m *Migrator) Run(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport

	migrations, err := LoadMigrations(m.fsys, m.dir)
	if err != nil {
		return report, &MigrationError{Err: err}
	}

	if err := m.ensureTable(ctx); err != nil {
		return report, &MigrationError{Err: fmt.Errorf("create migrations table: %w", err)}
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return report, &MigrationError{Err: fmt.Errorf("read applied migrations: %w", err)}
	}

	for _, mig := range migrations {
		if prev, ok := applied[mig.Version]; ok {
			if prev.Checksum != mig.Checksum {
				return report, &MigrationError{Version: mig.Version, Err: fmt.Errorf("%w: recorded %.12s, file %.12s", ErrChecksumMismatch, prev.Checksum, mig.Checksum)}
			}
			m.log.DebugContext(ctx, "migration already applied", slog.String("version", mig.Version))
			report.Skipped = append(report.Skipped, mig.Version)
			continue
		}

		ran, err := m.apply(ctx, mig)
		if err != nil {
			m.log.ErrorContext(ctx, "migration failed", slog.String("version", mig.Version), slog.String("error", err.Error()))
			return report, &MigrationError{Version: mig.Version, Err: err}
		}
		if !ran {
			report.Skipped = append(report.Skipped, mig.Version)
			continue
		}

		m.log.InfoContext(ctx, "migration applied", slog.String("version", mig.Version), slog.String("checksum", mig.Checksum[:12]))
		report.Applied = append(report.Applied, mig.Version)
	}

	return report, nil
}

// Status lists every migration file and whether it has been applied. A
// database that was never migrated reports everything as pending.
func (m *Migrator) Status(ctx context.Context) ([]MigrationState, error) {
	migrations, err := LoadMigrations(m.fsys, m.dir)
	if err != nil {
		return nil, &MigrationError{Err: err}
	}

	applied, err := m.applied(ctx)
	if err != nil && !errors.Is(err, ErrUndefinedTable) {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	states := make([]MigrationState, 0, len(migrations))
	for _, mig := range migrations {
		state := MigrationState{Version: mig.Version}
		if prev, ok := applied[mig.Version]; ok {
			state.Applied = true
			state.AppliedAt = prev.AppliedAt
			state.Modified = prev.Checksum != mig.Checksum
		}
		states = append(states, state)
	}
	return states, nil
}

// ensureTable creates the bookkeeping table under the migration lock so two
// first runs do not race on CREATE TABLE.
func (m *Migrator) ensureTable(ctx context.Context) error {
	return InTx(ctx, m.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		_, err := tx.Exec(ctx, createMigrationsTable)
		return err
	})
}

func (m *Migrator) applied(ctx context.Context) (map[string]appliedMigration, error) {
	rows, err := m.db.Query(ctx, "SELECT version, checksum, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, HandlePgError(err)
	}
	defer rows.Close()

	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[appliedMigration])
	if err != nil {
		return nil, HandlePgError(err)
	}

	out := make(map[string]appliedMigration, len(list))
	for _, a := range list {
		out[a.Version] = a
	}
	return out, nil
}

// apply runs one script and records it. It reports false when another
// migrator recorded the same version while this one waited for the lock.
func (m *Migrator) apply(ctx context.Context, mig Migration) (bool, error) {
	ran := false
	err := InTx(ctx, m.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return fmt.Errorf("lock: %w", err)
		}

		var checksum string
		err := tx.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", mig.Version).Scan(&checksum)
		switch {
		case err == nil:
			if checksum != mig.Checksum {
				return ErrChecksumMismatch
			}
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("check migration: %w", err)
		}

		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)", mig.Version, mig.Checksum); err != nil {
			return fmt.Errorf("record migration: %w", err)
		}

		ran = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ran, nil
}

// LoadMigrations reads the NNNN_name.sql files of dir sorted by number.
// Malformed names and duplicate numbers are errors; other files are ignored.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}

		match := migrationFileName.FindStringSubmatch(e.Name())
		if match == nil {
			return nil, fmt.Errorf("malformed migration file name %q: want NNNN_name.sql", e.Name())
		}
		number, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("migration file %q: %w", e.Name(), err)
		}
		if other, ok := seen[number]; ok {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", number, other, e.Name())
		}
		seen[number] = e.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration file: %w", err)
		}

		migrations = append(migrations, Migration{
			Number:   number,
			Version:  strings.TrimSuffix(e.Name(), ".sql"),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
			SQL:      string(content),
		})
	}

	slices.SortFunc(migrations, func(a, b Migration) int {
		return a.Number - b.Number
	})
	return migrations, nil
}
