package labelsrepo_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/core/repositories/labelsrepo"
	"github.com/jrazmi/todokeeper/sdk/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_CreateValidation(t *testing.T) {
	repo := labelsrepo.NewRepository(logger.NewDiscard(), newFakeStorer())
	ctx := context.Background()

	_, err := repo.Create(ctx, labelsrepo.CreateLabel{Name: ""})
	assert.ErrorIs(t, err, repositories.ErrValidation)

	_, err = repo.Create(ctx, labelsrepo.CreateLabel{Name: strings.Repeat("a", 101)})
	assert.ErrorIs(t, err, repositories.ErrValidation)

	label, err := repo.Create(ctx, labelsrepo.CreateLabel{Name: strings.Repeat("a", 100)})
	require.NoError(t, err)
	assert.Len(t, label.Name, 100)
}

func TestRepository_CRUD(t *testing.T) {
	repo := labelsrepo.NewRepository(logger.NewDiscard(), newFakeStorer())
	ctx := context.Background()

	created, err := repo.Create(ctx, labelsrepo.CreateLabel{Name: " urgent "})
	require.NoError(t, err)
	assert.Equal(t, "urgent", created.Name)

	_, err = repo.Create(ctx, labelsrepo.CreateLabel{Name: "urgent"})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	unchanged, err := repo.Update(ctx, created.ID, labelsrepo.UpdateLabel{})
	require.NoError(t, err)
	assert.Equal(t, "urgent", unchanged.Name)

	name := "later"
	renamed, err := repo.Update(ctx, created.ID, labelsrepo.UpdateLabel{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "later", renamed.Name)

	for _, bad := range []string{"", " ", strings.Repeat("n", 101)} {
		_, err = repo.Update(ctx, created.ID, labelsrepo.UpdateLabel{Name: &bad})
		assert.ErrorIs(t, err, repositories.ErrValidation, "name %q", bad)
	}

	got, err = repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "later", got.Name)

	require.NoError(t, repo.Delete(ctx, created.ID))
	assert.ErrorIs(t, repo.Delete(ctx, created.ID), repositories.ErrNotFound)
	_, err = repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRepository_ListOrderedByID(t *testing.T) {
	repo := labelsrepo.NewRepository(logger.NewDiscard(), newFakeStorer())
	ctx := context.Background()

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)

	for _, name := range []string{"c", "a", "b"} {
		_, err := repo.Create(ctx, labelsrepo.CreateLabel{Name: name})
		require.NoError(t, err)
	}

	labels, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, labels, 3)
	for i := 1; i < len(labels); i++ {
		assert.Less(t, labels[i-1].ID, labels[i].ID)
	}
}

func TestRepository_StorageError(t *testing.T) {
	store := newFakeStorer()
	store.err = errors.New("broken pipe")
	repo := labelsrepo.NewRepository(logger.NewDiscard(), store)

	_, err := repo.List(context.Background())
	var serr *repositories.StorageError
	assert.ErrorAs(t, err, &serr)
}

type fakeStorer struct {
	next   int64
	labels []labelsrepo.Label
	err    error
}

func newFakeStorer() *fakeStorer {
	return &fakeStorer{}
}

func (f *fakeStorer) find(id int64) int {
	for i, l := range f.labels {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeStorer) taken(name string, self int64) bool {
	for _, l := range f.labels {
		if l.Name == name && l.ID != self {
			return true
		}
	}
	return false
}

func (f *fakeStorer) Create(_ context.Context, input labelsrepo.CreateLabel) (labelsrepo.Label, error) {
	if f.taken(input.Name, 0) {
		return labelsrepo.Label{}, fmt.Errorf("label %q: %w", input.Name, repositories.ErrDuplicate)
	}
	f.next++
	l := labelsrepo.Label{ID: f.next, Name: input.Name}
	f.labels = append(f.labels, l)
	return l, nil
}

func (f *fakeStorer) Get(_ context.Context, id int64) (labelsrepo.Label, error) {
	i := f.find(id)
	if i < 0 {
		return labelsrepo.Label{}, repositories.ErrNotFound
	}
	return f.labels[i], nil
}

func (f *fakeStorer) List(context.Context) ([]labelsrepo.Label, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.labels, nil
}

func (f *fakeStorer) Update(_ context.Context, id int64, input labelsrepo.UpdateLabel) (labelsrepo.Label, error) {
	i := f.find(id)
	if i < 0 {
		return labelsrepo.Label{}, repositories.ErrNotFound
	}
	if input.Name != nil {
		if f.taken(*input.Name, id) {
			return labelsrepo.Label{}, repositories.ErrDuplicate
		}
		f.labels[i].Name = *input.Name
	}
	return f.labels[i], nil
}

func (f *fakeStorer) Delete(_ context.Context, id int64) error {
	i := f.find(id)
	if i < 0 {
		return repositories.ErrNotFound
	}
	f.labels = append(f.labels[:i], f.labels[i+1:]...)
	return nil
}
