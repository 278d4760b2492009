// Package todospgxstore stores todos in PostgreSQL.
package todospgxstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/jrazmi/todokeeper/schema/reflector"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

const table = "todos"

var todoColumns = []string{"id", "title", "completed", "created_at", "updated_at"}

var returning = "RETURNING " + strings.Join(todoColumns, ", ")

// touchUpdatedAt moves updated_at strictly forward even when two updates
// land within the clock's resolution.
var touchUpdatedAt = squirrel.Expr("GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')")

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Expectation is the table shape this store reads and writes.
func Expectation() reflector.TableExpectation {
	return reflector.TableExpectation{
		Table: table,
		Columns: map[string]string{
			"id":         "uuid",
			"title":      "text",
			"completed":  "bool",
			"created_at": "timestamptz",
			"updated_at": "timestamptz",
		},
	}
}

// Store manages the set of APIs for todo database access.
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

// Create inserts a new todo and returns the stored row.
func (s *Store) Create(ctx context.Context, todo todosrepo.NewTodo) (todosrepo.Todo, error) {
	query, args, err := psql.
		Insert(table).
		Columns("id", "title").
		Values(todo.ID, todo.Title).
		Suffix(returning).
		ToSql()
	if err != nil {
		return todosrepo.Todo{}, fmt.Errorf("build insert: %w", err)
	}

	var created todosrepo.Todo
	if err := pgxscan.Get(ctx, s.db, &created, query, args...); err != nil {
		return todosrepo.Todo{}, fmt.Errorf("insert todo: %w", postgresdb.HandlePgError(err))
	}
	return created, nil
}

// Get returns the todo with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (todosrepo.Todo, error) {
	query, args, err := psql.
		Select(todoColumns...).
		From(table).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return todosrepo.Todo{}, fmt.Errorf("build select: %w", err)
	}

	var todo todosrepo.Todo
	if err := pgxscan.Get(ctx, s.db, &todo, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return todosrepo.Todo{}, fmt.Errorf("todo %s: %w", id, repositories.ErrNotFound)
		}
		return todosrepo.Todo{}, fmt.Errorf("select todo: %w", postgresdb.HandlePgError(err))
	}
	return todo, nil
}

// List returns all todos ordered by creation time, then id.
func (s *Store) List(ctx context.Context) ([]todosrepo.Todo, error) {
	query, args, err := psql.
		Select(todoColumns...).
		From(table).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	todos := []todosrepo.Todo{}
	if err := pgxscan.Select(ctx, s.db, &todos, query, args...); err != nil {
		return nil, fmt.Errorf("select todos: %w", postgresdb.HandlePgError(err))
	}
	return todos, nil
}

// Update changes the provided fields and refreshes updated_at in a single
// statement. It never inserts.
func (s *Store) Update(ctx context.Context, id uuid.UUID, updates todosrepo.UpdateTodo) (todosrepo.Todo, error) {
	builder := psql.Update(table)
	if updates.Title != nil {
		builder = builder.Set("title", *updates.Title)
	}
	if updates.Completed != nil {
		builder = builder.Set("completed", *updates.Completed)
	}

	query, args, err := builder.
		Set("updated_at", touchUpdatedAt).
		Where("id = ?", id).
		Suffix(returning).
		ToSql()
	if err != nil {
		return todosrepo.Todo{}, fmt.Errorf("build update: %w", err)
	}

	var todo todosrepo.Todo
	if err := pgxscan.Get(ctx, s.db, &todo, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return todosrepo.Todo{}, fmt.Errorf("todo %s: %w", id, repositories.ErrNotFound)
		}
		return todosrepo.Todo{}, fmt.Errorf("update todo: %w", postgresdb.HandlePgError(err))
	}
	return todo, nil
}

// Delete removes the todo with the given id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := psql.
		Delete(table).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete todo: %w", postgresdb.HandlePgError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("todo %s: %w", id, repositories.ErrNotFound)
	}
	return nil
}

// InTx runs fn with a Store bound to a new transaction, or to a savepoint
// when the store already runs inside one.
func (s *Store) InTx(ctx context.Context, fn func(todosrepo.Storer) error) error {
	return postgresdb.InTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewStore(s.log, tx))
	})
}
