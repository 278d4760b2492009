package postgresdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Set of error variables for CRUD operations.
var (
	ErrDBNotFound        = pgx.ErrNoRows
	ErrDBDuplicatedEntry = errors.New("duplicated entry")
	ErrUndefinedTable    = errors.New("undefined table")

	// ErrPoolExhausted is returned when no connection became free within the
	// pool's acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// ProvisioningError reports that the target database could not be reached or
// created.
type ProvisioningError struct {
	Database string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning database %q: %v", e.Database, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// MigrationError reports the migration script that failed. Version is empty
// when the failure happened before any script ran.
type MigrationError struct {
	Version string
	Err     error
}

func (e *MigrationError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("migrations: %v", e.Err)
	}
	return fmt.Sprintf("migration %s: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// HandlePgError converts PostgreSQL errors to application errors
func HandlePgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UndefinedTable:
			return fmt.Errorf("%w: %s", ErrUndefinedTable, pgErr.Message)
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %s", ErrDBDuplicatedEntry, pgErr.ConstraintName)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDBNotFound
	}

	return err
}

// IsRetryable reports whether err is transient: an exhausted pool, a lost
// connection, a serialization failure or a deadlock.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPoolExhausted) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgerrcode.IsConnectionException(pgErr.Code):
			return true
		case pgErr.Code == pgerrcode.SerializationFailure, pgErr.Code == pgerrcode.DeadlockDetected:
			return true
		case pgErr.Code == pgerrcode.AdminShutdown, pgErr.Code == pgerrcode.CannotConnectNow:
			return true
		}
		return false
	}

	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// isPermanentConnectError reports errors that retrying a connect cannot fix.
func isPermanentConnectError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgerrcode.IsInvalidAuthorizationSpecification(pgErr.Code) ||
		pgErr.Code == pgerrcode.InvalidCatalogName ||
		pgErr.Code == pgerrcode.InvalidPassword
}
