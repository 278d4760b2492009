package schemamigrationspgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/core/repositories/schemamigrationsrepo"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

// Store provides database access for SchemaMigration.
type Store struct {
	log *logger.Logger
	db  postgresdb.DB
}

// NewStore creates a new SchemaMigration store
func NewStore(log *logger.Logger, db postgresdb.DB) *Store {
	return &Store{
		log: log,
		db:  db,
	}
}

// List returns every applied migration. A missing bookkeeping table reads as
// no migrations.
func (s *Store) List(ctx context.Context) ([]schemamigrationsrepo.SchemaMigration, error) {
	query := `SELECT version, checksum, applied_at
		FROM schema_migrations
		ORDER BY version`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return s.empty(err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[schemamigrationsrepo.SchemaMigration])
	if err != nil {
		return s.empty(err)
	}
	return records, nil
}

// Get returns the migration with the given version.
func (s *Store) Get(ctx context.Context, version string) (schemamigrationsrepo.SchemaMigration, error) {
	query := `SELECT version, checksum, applied_at
		FROM schema_migrations
		WHERE version = @version`

	rows, err := s.db.Query(ctx, query, pgx.NamedArgs{"version": version})
	if err != nil {
		return schemamigrationsrepo.SchemaMigration{}, postgresdb.HandlePgError(err)
	}

	record, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[schemamigrationsrepo.SchemaMigration])
	if err != nil {
		err = postgresdb.HandlePgError(err)
		if errors.Is(err, postgresdb.ErrDBNotFound) || errors.Is(err, postgresdb.ErrUndefinedTable) {
			return schemamigrationsrepo.SchemaMigration{}, fmt.Errorf("schema migration %s: %w", version, repositories.ErrNotFound)
		}
		return schemamigrationsrepo.SchemaMigration{}, err
	}
	return record, nil
}

func (s *Store) empty(err error) ([]schemamigrationsrepo.SchemaMigration, error) {
	err = postgresdb.HandlePgError(err)
	if errors.Is(err, postgresdb.ErrUndefinedTable) {
		return []schemamigrationsrepo.SchemaMigration{}, nil
	}
	return nil, err
}
