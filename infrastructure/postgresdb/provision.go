package postgresdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// maintenanceDatabase is the database CreateDatabase connects to.
const maintenanceDatabase = "postgres"

// CreateDatabase makes sure the database named in databaseURL exists. It
// connects to the maintenance database with the same credentials and creates
// the target when it is missing. Running it again, or concurrently, is safe.
// Unreachable servers, rejected credentials and missing privileges are
// reported as *ProvisioningError.
func CreateDatabase(ctx context.Context, databaseURL string, log *slog.Logger) (created bool, err error) {
	if log == nil {
		log = slog.Default()
	}

	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return false, &ProvisioningError{Err: fmt.Errorf("parsing connection string: %w", err)}
	}

	name := cfg.Database
	if name == "" {
		return false, &ProvisioningError{Err: errors.New("connection string names no database")}
	}
	if name == maintenanceDatabase {
		return false, nil
	}

	admin := cfg.Copy()
	admin.Database = maintenanceDatabase

	conn, err := pgx.ConnectConfig(ctx, admin)
	if err != nil {
		return false, &ProvisioningError{Database: name, Err: fmt.Errorf("connecting to %s: %w", maintenanceDatabase, err)}
	}
	defer conn.Close(context.WithoutCancel(ctx))

	var exists bool
	if err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists); err != nil {
		return false, &ProvisioningError{Database: name, Err: fmt.Errorf("looking up database: %w", err)}
	}
	if exists {
		log.DebugContext(ctx, "database already exists", slog.String("database", name))
		return false, nil
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		var pgErr *pgconn.PgError
		// A racing CREATE DATABASE can surface as either code.
		if errors.As(err, &pgErr) && (pgErr.Code == pgerrcode.DuplicateDatabase || pgErr.Code == pgerrcode.UniqueViolation) {
			log.DebugContext(ctx, "database created concurrently", slog.String("database", name))
			return false, nil
		}
		return false, &ProvisioningError{Database: name, Err: fmt.Errorf("creating database: %w", err)}
	}

	log.InfoContext(ctx, "database created", slog.String("database", name))
	return true, nil
}
