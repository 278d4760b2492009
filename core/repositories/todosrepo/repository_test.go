package todosrepo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo/stores/todosmemstore"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo/todostest"
	"github.com/jrazmi/todokeeper/sdk/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_MemStore(t *testing.T) {
	todostest.Run(t, func(t *testing.T) *todosrepo.Repository {
		return todosrepo.NewRepository(logger.NewDiscard(), todosmemstore.NewStore())
	})
}

func TestRepository_ListEmpty(t *testing.T) {
	repo := todosrepo.NewRepository(logger.NewDiscard(), &brokenStorer{})

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestRepository_StorageErrors(t *testing.T) {
	cause := errors.New("connection reset by peer")
	repo := todosrepo.NewRepository(logger.NewDiscard(), &brokenStorer{err: cause})
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())
	title := "anything"

	calls := map[string]func() error{
		"create": func() error { _, err := repo.Create(ctx, todosrepo.CreateTodo{Title: title}); return err },
		"get":    func() error { _, err := repo.Get(ctx, id); return err },
		"list":   func() error { _, err := repo.List(ctx); return err },
		"update": func() error { _, err := repo.Update(ctx, id, todosrepo.UpdateTodo{Title: &title}); return err },
		"delete": func() error { return repo.Delete(ctx, id) },
		"batch":  func() error { return repo.Batch(ctx, func(*todosrepo.Repository) error { return nil }) },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)

			var serr *repositories.StorageError
			require.ErrorAs(t, err, &serr)
			assert.ErrorIs(t, err, cause)
			assert.NotErrorIs(t, err, repositories.ErrNotFound)
		})
	}
}

func TestRepository_NotFoundPassesThrough(t *testing.T) {
	repo := todosrepo.NewRepository(logger.NewDiscard(), todosmemstore.NewStore())

	_, err := repo.Get(context.Background(), uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, repositories.ErrNotFound)

	var serr *repositories.StorageError
	assert.False(t, errors.As(err, &serr))
}

func TestRepository_ValidationSkipsStorage(t *testing.T) {
	store := &brokenStorer{err: errors.New("must not be called")}
	repo := todosrepo.NewRepository(logger.NewDiscard(), store)

	_, err := repo.Create(context.Background(), todosrepo.CreateTodo{Title: " "})
	assert.ErrorIs(t, err, repositories.ErrValidation)
	assert.Zero(t, store.calls)
}

// brokenStorer fails every call with err. With a nil err it behaves like an
// empty store.
type brokenStorer struct {
	err   error
	calls int
}

func (s *brokenStorer) Create(context.Context, todosrepo.NewTodo) (todosrepo.Todo, error) {
	s.calls++
	return todosrepo.Todo{}, s.err
}

func (s *brokenStorer) Get(context.Context, uuid.UUID) (todosrepo.Todo, error) {
	s.calls++
	return todosrepo.Todo{}, s.err
}

func (s *brokenStorer) List(context.Context) ([]todosrepo.Todo, error) {
	s.calls++
	return nil, s.err
}

func (s *brokenStorer) Update(context.Context, uuid.UUID, todosrepo.UpdateTodo) (todosrepo.Todo, error) {
	s.calls++
	return todosrepo.Todo{}, s.err
}

func (s *brokenStorer) Delete(context.Context, uuid.UUID) error {
	s.calls++
	return s.err
}

func (s *brokenStorer) InTx(context.Context, func(todosrepo.Storer) error) error {
	s.calls++
	return s.err
}
