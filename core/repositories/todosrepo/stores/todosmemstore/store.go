// Package todosmemstore keeps todos in process memory. It follows the same
// contract as the PostgreSQL store and backs unit tests.
package todosmemstore

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo"
)

// Store is a mutex guarded map of todos.
type Store struct {
	mu    *sync.Mutex
	todos map[uuid.UUID]todosrepo.Todo
	now   func() time.Time
	inTx  bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		mu:    &sync.Mutex{},
		todos: make(map[uuid.UUID]todosrepo.Todo),
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// WithClock replaces the time source. Timestamps keep microsecond precision
// like PostgreSQL's timestamptz.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = func() time.Time { return now().UTC().Truncate(time.Microsecond) }
	return s
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Create(ctx context.Context, todo todosrepo.NewTodo) (todosrepo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return todosrepo.Todo{}, err
	}
	defer s.lock()()

	if _, ok := s.todos[todo.ID]; ok {
		return todosrepo.Todo{}, fmt.Errorf("todo %s: %w", todo.ID, repositories.ErrDuplicate)
	}

	now := s.now()
	created := todosrepo.Todo{
		ID:        todo.ID,
		Title:     todo.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.todos[todo.ID] = created
	return created, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (todosrepo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return todosrepo.Todo{}, err
	}
	defer s.lock()()

	todo, ok := s.todos[id]
	if !ok {
		return todosrepo.Todo{}, fmt.Errorf("todo %s: %w", id, repositories.ErrNotFound)
	}
	return todo, nil
}

func (s *Store) List(ctx context.Context) ([]todosrepo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	todos := slices.Collect(maps.Values(s.todos))
	slices.SortFunc(todos, func(a, b todosrepo.Todo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	if todos == nil {
		todos = []todosrepo.Todo{}
	}
	return todos, nil
}

func (s *Store) Update(ctx context.Context, id uuid.UUID, updates todosrepo.UpdateTodo) (todosrepo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return todosrepo.Todo{}, err
	}
	defer s.lock()()

	todo, ok := s.todos[id]
	if !ok {
		return todosrepo.Todo{}, fmt.Errorf("todo %s: %w", id, repositories.ErrNotFound)
	}

	if updates.Title != nil {
		todo.Title = *updates.Title
	}
	if updates.Completed != nil {
		todo.Completed = *updates.Completed
	}

	now := s.now()
	if !now.After(todo.UpdatedAt) {
		now = todo.UpdatedAt.Add(time.Microsecond)
	}
	todo.UpdatedAt = now

	s.todos[id] = todo
	return todo, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	if _, ok := s.todos[id]; !ok {
		return fmt.Errorf("todo %s: %w", id, repositories.ErrNotFound)
	}
	delete(s.todos, id)
	return nil
}

// InTx holds the store lock for the whole of fn and works on a copy that
// replaces the live data only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(todosrepo.Storer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	tx := &Store{
		mu:    s.mu,
		todos: maps.Clone(s.todos),
		now:   s.now,
		inTx:  true,
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.todos = tx.todos
	return nil
}
