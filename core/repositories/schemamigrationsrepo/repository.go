// Package schemamigrationsrepo gives read access to applied schema versions.
// Rows are written only by the migrator.
package schemamigrationsrepo

import (
	"context"
	"fmt"

	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

// Storer defines the data storage interface for SchemaMigration.
type Storer interface {
	List(ctx context.Context) ([]SchemaMigration, error)
	Get(ctx context.Context, version string) (SchemaMigration, error)
}

// Repository provides access to schemaMigration storage.
type Repository struct {
	log    *logger.Logger
	storer Storer
}

// NewRepository creates a new SchemaMigration repository
func NewRepository(log *logger.Logger, storer Storer) *Repository {
	return &Repository{
		log:    log,
		storer: storer,
	}
}

// List returns applied migrations in version order.
func (r *Repository) List(ctx context.Context) ([]SchemaMigration, error) {
	records, err := r.storer.List(ctx)
	if err != nil {
		return nil, repositories.Classify("list schema migrations", err)
	}
	return records, nil
}

// Get returns one applied migration.
func (r *Repository) Get(ctx context.Context, version string) (SchemaMigration, error) {
	record, err := r.storer.Get(ctx, version)
	if err != nil {
		return SchemaMigration{}, repositories.Classify("get schema migration", err)
	}
	return record, nil
}

// Current returns the most recently applied version, or
// repositories.ErrNotFound on a database that was never migrated.
func (r *Repository) Current(ctx context.Context) (SchemaMigration, error) {
	records, err := r.List(ctx)
	if err != nil {
		return SchemaMigration{}, err
	}
	if len(records) == 0 {
		return SchemaMigration{}, fmt.Errorf("schema version: %w", repositories.ErrNotFound)
	}
	return records[len(records)-1], nil
}
