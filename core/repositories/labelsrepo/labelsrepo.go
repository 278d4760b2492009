// Package labelsrepo manages named labels. Names are unique.
package labelsrepo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

// Label is a stored label.
type Label struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateLabel contains fields for creating a new label.
type CreateLabel struct {
	Name string `json:"name" validate:"required,max=100"`
}

// UpdateLabel contains fields for updating a label. A nil Name keeps the
// current one.
type UpdateLabel struct {
	Name *string `json:"name,omitempty" validate:"omitnil,min=1,max=100"`
}

// Storer returns repositories.ErrNotFound for unknown ids and
// repositories.ErrDuplicate when a name is taken.
type Storer interface {
	Create(ctx context.Context, input CreateLabel) (Label, error)
	Get(ctx context.Context, id int64) (Label, error)
	List(ctx context.Context) ([]Label, error)
	Update(ctx context.Context, id int64, input UpdateLabel) (Label, error)
	Delete(ctx context.Context, id int64) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Repository manages the set of labels.
type Repository struct {
	log    *logger.Logger
	storer Storer
}

// NewRepository creates a new Label repository
func NewRepository(log *logger.Logger, storer Storer) *Repository {
	return &Repository{
		log:    log,
		storer: storer,
	}
}

// Create validates the name and stores a new label.
func (r *Repository) Create(ctx context.Context, input CreateLabel) (Label, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validate.Struct(input); err != nil {
		return Label{}, repositories.NewValidationError(err)
	}

	label, err := r.storer.Create(ctx, input)
	if err != nil {
		return Label{}, r.fail(ctx, "create label", err)
	}
	return label, nil
}

// Get returns the label with the given id.
func (r *Repository) Get(ctx context.Context, id int64) (Label, error) {
	label, err := r.storer.Get(ctx, id)
	if err != nil {
		return Label{}, r.fail(ctx, "get label", err)
	}
	return label, nil
}

// List returns all labels ordered by id.
func (r *Repository) List(ctx context.Context) ([]Label, error) {
	labels, err := r.storer.List(ctx)
	if err != nil {
		return nil, r.fail(ctx, "list labels", err)
	}
	if labels == nil {
		labels = []Label{}
	}
	return labels, nil
}

// Update renames the label when a name is given and refreshes UpdatedAt.
func (r *Repository) Update(ctx context.Context, id int64, input UpdateLabel) (Label, error) {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		input.Name = &name
	}
	if err := validate.Struct(input); err != nil {
		return Label{}, repositories.NewValidationError(err)
	}

	label, err := r.storer.Update(ctx, id, input)
	if err != nil {
		return Label{}, r.fail(ctx, "update label", err)
	}
	return label, nil
}

// Delete removes the label.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if err := r.storer.Delete(ctx, id); err != nil {
		return r.fail(ctx, "delete label", err)
	}
	return nil
}

func (r *Repository) fail(ctx context.Context, op string, err error) error {
	err = repositories.Classify(op, err)
	if !repositories.IsExpected(err) {
		r.log.ErrorContext(ctx, op, slog.String("error", err.Error()))
	}
	return fmt.Errorf("label repository: %w", err)
}
