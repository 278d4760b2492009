// Package labelspgxstore stores labels in PostgreSQL.
package labelspgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/core/repositories/labelsrepo"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/jrazmi/todokeeper/schema/reflector"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

// Expectation is the table shape this store reads and writes.
func Expectation() reflector.TableExpectation {
	return reflector.TableExpectation{
		Table: "labels",
		Columns: map[string]string{
			"id":         "int8",
			"name":       "text",
			"created_at": "timestamptz",
			"updated_at": "timestamptz",
		},
	}
}

// Store manages the set of APIs for label database access.
type Store struct {
	log *logger.Logger
	db  postgresdb.DB
}

// NewStore constructs the api for data access over a pool or a transaction.
func NewStore(log *logger.Logger, db postgresdb.DB) *Store {
	return &Store{
		log: log,
		db:  db,
	}
}

// Create checks for a taken name and inserts in one transaction. The unique
// constraint catches a racing insert the check could not see.
func (s *Store) Create(ctx context.Context, input labelsrepo.CreateLabel) (labelsrepo.Label, error) {
	var label labelsrepo.Label
	err := postgresdb.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := ensureNameFree(ctx, tx, input.Name, 0); err != nil {
			return err
		}

		query := `INSERT INTO labels (name)
			VALUES (@name)
			RETURNING id, name, created_at, updated_at`

		rows, err := tx.Query(ctx, query, pgx.NamedArgs{"name": input.Name})
		if err != nil {
			return err
		}
		label, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[labelsrepo.Label])
		return err
	})
	if err != nil {
		return labelsrepo.Label{}, mapError(err, input.Name)
	}
	return label, nil
}

// Get returns the label with the given id.
func (s *Store) Get(ctx context.Context, id int64) (labelsrepo.Label, error) {
	query := `SELECT id, name, created_at, updated_at
		FROM labels
		WHERE id = @id`

	rows, err := s.db.Query(ctx, query, pgx.NamedArgs{"id": id})
	if err != nil {
		return labelsrepo.Label{}, postgresdb.HandlePgError(err)
	}

	label, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[labelsrepo.Label])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return labelsrepo.Label{}, fmt.Errorf("label %d: %w", id, repositories.ErrNotFound)
		}
		return labelsrepo.Label{}, postgresdb.HandlePgError(err)
	}
	return label, nil
}

// List returns all labels ordered by id.
func (s *Store) List(ctx context.Context) ([]labelsrepo.Label, error) {
	query := `SELECT id, name, created_at, updated_at
		FROM labels
		ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}

	labels, err := pgx.CollectRows(rows, pgx.RowToStructByName[labelsrepo.Label])
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}
	return labels, nil
}

// Update keeps the current name when none is given.
func (s *Store) Update(ctx context.Context, id int64, input labelsrepo.UpdateLabel) (labelsrepo.Label, error) {
	var label labelsrepo.Label
	err := postgresdb.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if input.Name != nil {
			if err := ensureNameFree(ctx, tx, *input.Name, id); err != nil {
				return err
			}
		}

		query := `UPDATE labels
			SET name = COALESCE(@name, name),
				updated_at = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')
			WHERE id = @id
			RETURNING id, name, created_at, updated_at`

		rows, err := tx.Query(ctx, query, pgx.NamedArgs{"id": id, "name": input.Name})
		if err != nil {
			return err
		}
		label, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[labelsrepo.Label])
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("label %d: %w", id, repositories.ErrNotFound)
		}
		return err
	})
	if err != nil {
		name := ""
		if input.Name != nil {
			name = *input.Name
		}
		return labelsrepo.Label{}, mapError(err, name)
	}
	return label, nil
}

// Delete removes the label with the given id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM labels WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return postgresdb.HandlePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("label %d: %w", id, repositories.ErrNotFound)
	}
	return nil
}

// ensureNameFree fails with ErrDuplicate when another label owns name.
func ensureNameFree(ctx context.Context, tx pgx.Tx, name string, self int64) error {
	var taken bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM labels WHERE name = @name AND id <> @id)`,
		pgx.NamedArgs{"name": name, "id": self},
	).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("label %q: %w", name, repositories.ErrDuplicate)
	}
	return nil
}

func mapError(err error, name string) error {
	if repositories.IsExpected(err) {
		return err
	}
	err = postgresdb.HandlePgError(err)
	if errors.Is(err, postgresdb.ErrDBDuplicatedEntry) {
		return fmt.Errorf("label %q: %w", name, repositories.ErrDuplicate)
	}
	return err
}
