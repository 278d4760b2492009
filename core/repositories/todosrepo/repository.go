// Package todosrepo is the todo repository: validation, id generation and
// error classification in front of a Storer.
package todosrepo

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

// Storer is the persistence contract for todos. Get, Update and Delete return
// repositories.ErrNotFound for unknown ids. List returns todos ordered by
// created_at, then id.
type Storer interface {
	Create(ctx context.Context, todo NewTodo) (Todo, error)
	Get(ctx context.Context, id uuid.UUID) (Todo, error)
	List(ctx context.Context) ([]Todo, error)
	Update(ctx context.Context, id uuid.UUID, updates UpdateTodo) (Todo, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// InTx runs fn against a Storer bound to one transaction, committing when
	// fn returns nil.
	InTx(ctx context.Context, fn func(Storer) error) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Repository manages the set of todo items.
type Repository struct {
	log    *logger.Logger
	storer Storer
	newID  func() (uuid.UUID, error)
}

// NewRepository creates a new Todo repository
func NewRepository(log *logger.Logger, storer Storer) *Repository {
	return &Repository{
		log:    log,
		storer: storer,
		newID:  uuid.NewV7,
	}
}

// Create validates the title, assigns a new id and stores the todo with
// completed set to false.
func (r *Repository) Create(ctx context.Context, input CreateTodo) (Todo, error) {
	input = input.normalize()
	if err := validate.Struct(input); err != nil {
		return Todo{}, r.fail(ctx, "create todo", repositories.NewValidationError(err))
	}

	id, err := r.newID()
	if err != nil {
		return Todo{}, r.fail(ctx, "create todo", err)
	}

	todo, err := r.storer.Create(ctx, NewTodo{ID: id, Title: input.Title})
	if err != nil {
		return Todo{}, r.fail(ctx, "create todo", err)
	}

	r.log.DebugContext(ctx, "todo created", slog.String("id", todo.ID.String()))
	return todo, nil
}

// Get returns the todo with the given id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Todo, error) {
	todo, err := r.storer.Get(ctx, id)
	if err != nil {
		return Todo{}, r.fail(ctx, "get todo", err)
	}
	return todo, nil
}

// List returns every todo, oldest first. It never returns a nil slice.
func (r *Repository) List(ctx context.Context) ([]Todo, error) {
	todos, err := r.storer.List(ctx)
	if err != nil {
		return nil, r.fail(ctx, "list todos", err)
	}
	if todos == nil {
		todos = []Todo{}
	}
	return todos, nil
}

// Update applies the provided fields. An update with no fields only
// refreshes UpdatedAt.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates UpdateTodo) (Todo, error) {
	updates = updates.normalize()
	if err := validate.Struct(updates); err != nil {
		return Todo{}, r.fail(ctx, "update todo", repositories.NewValidationError(err))
	}

	todo, err := r.storer.Update(ctx, id, updates)
	if err != nil {
		return Todo{}, r.fail(ctx, "update todo", err)
	}

	r.log.DebugContext(ctx, "todo updated", slog.String("id", id.String()))
	return todo, nil
}

// Delete removes the todo. Deleting an unknown or already deleted id returns
// repositories.ErrNotFound.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.storer.Delete(ctx, id); err != nil {
		return r.fail(ctx, "delete todo", err)
	}

	r.log.DebugContext(ctx, "todo deleted", slog.String("id", id.String()))
	return nil
}

// Batch runs fn in a single transaction. The Repository passed to fn is bound
// to that transaction; if fn returns an error nothing it did is kept.
func (r *Repository) Batch(ctx context.Context, fn func(repo *Repository) error) error {
	err := r.storer.InTx(ctx, func(s Storer) error {
		return fn(&Repository{log: r.log, storer: s, newID: r.newID})
	})
	if err != nil {
		return repositories.Classify("batch", err)
	}
	return nil
}

func (r *Repository) fail(ctx context.Context, op string, err error) error {
	err = repositories.Classify(op, err)
	if repositories.IsExpected(err) {
		r.log.DebugContext(ctx, op, slog.String("outcome", err.Error()))
		return err
	}
	r.log.ErrorContext(ctx, op, slog.String("error", err.Error()))
	return err
}
