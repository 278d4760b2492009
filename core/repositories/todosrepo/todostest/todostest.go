// Package todostest holds behaviour checks that every todosrepo.Storer must
// pass. Store packages run them from their own tests.
package todostest

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// NewRepo builds a repository for one subtest.
type NewRepo func(t *testing.T) *todosrepo.Repository

// Run executes the CRUD scenario and the property checks as subtests.
// Repositories may share a database; checks only rely on rows they create.
func Run(t *testing.T, newRepo NewRepo) {
	t.Run("crud_scenario", func(t *testing.T) { RunCRUDScenario(t, newRepo(t)) })
	t.Run("list_ordering", func(t *testing.T) { RunListOrdering(t, newRepo(t)) })
	t.Run("partial_update", func(t *testing.T) { RunPartialUpdate(t, newRepo(t)) })
	t.Run("idempotent_completed", func(t *testing.T) { RunIdempotentCompleted(t, newRepo(t)) })
	t.Run("validation", func(t *testing.T) { RunValidation(t, newRepo(t)) })
	t.Run("batch_rollback", func(t *testing.T) { RunBatchRollback(t, newRepo(t)) })
	t.Run("concurrent_creates", func(t *testing.T) { RunConcurrentCreates(t, newRepo(t)) })
}

// RunCRUDScenario walks one todo through its whole life.
func RunCRUDScenario(t *testing.T, repo *todosrepo.Repository) {
	t.Helper()
	ctx := context.Background()

	created, err := repo.Create(ctx, todosrepo.CreateTodo{Title: "buy milk"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got.Title)
	assert.False(t, got.Completed)
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt), "created_at %s != updated_at %s", got.CreatedAt, got.UpdatedAt)

	completed := true
	_, err = repo.Update(ctx, created.ID, todosrepo.UpdateTodo{Completed: &completed})
	require.NoError(t, err)

	got2, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got2.Completed)
	assert.Equal(t, "buy milk", got2.Title)
	assert.True(t, got2.UpdatedAt.After(got.UpdatedAt), "updated_at did not advance: %s -> %s", got.UpdatedAt, got2.UpdatedAt)
	assert.True(t, got2.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, repo.Delete(ctx, created.ID))

	_, err = repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	title := "gone"
	_, err = repo.Update(ctx, created.ID, todosrepo.UpdateTodo{Title: &title})
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	err = repo.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

// RunListOrdering checks that list is sorted by created_at, then id, and
// holds every created todo exactly once.
func RunListOrdering(t *testing.T, repo *todosrepo.Repository) {
	t.Helper()
	ctx := context.Background()

	want := make(map[uuid.UUID]bool)
	for i := range 5 {
		todo, err := repo.Create(ctx, todosrepo.CreateTodo{Title: fmt.Sprintf("ordered %d", i)})
		require.NoError(t, err)
		want[todo.ID] = true
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.NotNil(t, list)

	seen := make(map[uuid.UUID]int)
	for i, todo := range list {
		seen[todo.ID]++
		if i == 0 {
			continue
		}
		prev := list[i-1]
		ordered := prev.CreatedAt.Before(todo.CreatedAt) ||
			(prev.CreatedAt.Equal(todo.CreatedAt) && bytes.Compare(prev.ID[:], todo.ID[:]) < 0)
		assert.True(t, ordered, "todo %s listed after %s", todo.ID, prev.ID)
	}
	for id := range want {
		assert.Equal(t, 1, seen[id], "todo %s", id)
	}
}

// RunPartialUpdate checks that fields left nil keep their value.
func RunPartialUpdate(t *testing.T, repo *todosrepo.Repository) {
	t.Helper()
	ctx := context.Background()

	todo, err := repo.Create(ctx, todosrepo.CreateTodo{Title: "  write report  "})
	require.NoError(t, err)
	assert.Equal(t, "write report", todo.Title)

	completed := true
	todo, err = repo.Update(ctx, todo.ID, todosrepo.UpdateTodo{Completed: &completed})
	require.NoError(t, err)

	title := "write the report"
	updated, err := repo.Update(ctx, todo.ID, todosrepo.UpdateTodo{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.True(t, updated.Completed)
	assert.True(t, updated.UpdatedAt.After(todo.UpdatedAt))

	touched, err := repo.Update(ctx, todo.ID, todosrepo.UpdateTodo{})
	require.NoError(t, err)
	assert.Equal(t, updated.Title, touched.Title)
	assert.Equal(t, updated.Completed, touched.Completed)
	assert.True(t, touched.UpdatedAt.After(updated.UpdatedAt))
}

// RunIdempotentCompleted checks that setting completed twice gives the same
// state apart from updated_at.
func RunIdempotentCompleted(t *testing.T, repo *todosrepo.Repository) {
	t.Helper()
	ctx := context.Background()

	todo, err := repo.Create(ctx, todosrepo.CreateTodo{Title: "water plants"})
	require.NoError(t, err)

	completed := true
	first, err := repo.Update(ctx, todo.ID, todosrepo.UpdateTodo{Completed: &completed})
	require.NoError(t, err)
	second, err := repo.Update(ctx, todo.ID, todosrepo.UpdateTodo{Completed: &completed})
	require.NoError(t, err)

	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.Completed, second.Completed)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

// RunValidation checks that bad titles are rejected without side effects.
func RunValidation(t *testing.T, repo *todosrepo.Repository) {
	t.Helper()
	ctx := context.Background()

	for name, title := range map[string]string{
		"empty":    "",
		"blank":    "   ",
		"too long": string(bytes.Repeat([]byte("x"), todosrepo.TitleMaxLength+1)),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Create(ctx, todosrepo.CreateTodo{Title: title})
			require.Error(t, err)
			assert.ErrorIs(t, err, repositories.ErrValidation)

			var verr *repositories.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "title", verr.Fields[0].Field)
		})
	}

	longest, err := repo.Create(ctx, todosrepo.CreateTodo{Title: string(bytes.Repeat([]byte("é"), todosrepo.TitleMaxLength/2)) + string(bytes.Repeat([]byte("x"), todosrepo.TitleMaxLength/2))})
	require.NoError(t, err)

	for name, title := range map[string]string{
		"update empty":    "",
		"update blank":    "   ",
		"update too long": string(bytes.Repeat([]byte("y"), todosrepo.TitleMaxLength+1)),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Update(ctx, longest.ID, todosrepo.UpdateTodo{Title: &title})
			require.Error(t, err)
			assert.ErrorIs(t, err, repositories.ErrValidation)

			var verr *repositories.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "title", verr.Fields[0].Field)
		})
	}

	got, err := repo.Get(ctx, longest.ID)
	require.NoError(t, err)
	assert.Equal(t, longest.Title, got.Title)
	assert.True(t, got.UpdatedAt.Equal(longest.UpdatedAt))
}

// RunBatchRollback checks that a failing batch leaves nothing behind.
func RunBatchRollback(t *testing.T, repo *todosrepo.Repository) {
	t.Helper()
	ctx := context.Background()

	var inside uuid.UUID
	err := repo.Batch(ctx, func(tx *todosrepo.Repository) error {
		todo, err := tx.Create(ctx, todosrepo.CreateTodo{Title: "never kept"})
		if err != nil {
			return err
		}
		inside = todo.ID
		_, err = tx.Get(ctx, uuid.Must(uuid.NewV7()))
		return err
	})
	require.ErrorIs(t, err, repositories.ErrNotFound)
	require.NotEqual(t, uuid.Nil, inside)

	_, err = repo.Get(ctx, inside)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	var a, b todosrepo.Todo
	err = repo.Batch(ctx, func(tx *todosrepo.Repository) error {
		var err error
		if a, err = tx.Create(ctx, todosrepo.CreateTodo{Title: "batch a"}); err != nil {
			return err
		}
		b, err = tx.Create(ctx, todosrepo.CreateTodo{Title: "batch b"})
		return err
	})
	require.NoError(t, err)

	_, err = repo.Get(ctx, a.ID)
	assert.NoError(t, err)
	_, err = repo.Get(ctx, b.ID)
	assert.NoError(t, err)
}

// RunConcurrentCreates checks that parallel creates never collide.
func RunConcurrentCreates(t *testing.T, repo *todosrepo.Repository) {
	t.Helper()
	ctx := context.Background()

	const n = 20
	ids := make([]uuid.UUID, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			todo, err := repo.Create(gctx, todosrepo.CreateTodo{Title: fmt.Sprintf("parallel %d", i)})
			if err != nil {
				return err
			}
			ids[i] = todo.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	unique := make(map[uuid.UUID]struct{}, n)
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, n)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	found := 0
	for _, todo := range list {
		if _, ok := unique[todo.ID]; ok {
			found++
		}
	}
	assert.Equal(t, n, found)
}
