package todosrepo

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TitleMaxLength is the longest accepted title, in characters.
const TitleMaxLength = 100

// Todo is a stored todo item. CreatedAt never changes; UpdatedAt moves
// forward on every successful update.
type Todo struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Completed bool      `json:"completed" db:"completed"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateTodo contains fields for creating a new todo.
type CreateTodo struct {
	Title string `json:"title" validate:"required,max=100"`
}

// UpdateTodo contains fields for updating an existing todo.
// Nil fields are left unchanged.
type UpdateTodo struct {
	Title     *string `json:"title,omitempty" validate:"omitnil,min=1,max=100"`
	Completed *bool   `json:"completed,omitempty"`
}

// NewTodo is what a Storer persists on Create.
type NewTodo struct {
	ID    uuid.UUID
	Title string
}

func (c CreateTodo) normalize() CreateTodo {
	c.Title = strings.TrimSpace(c.Title)
	return c
}

func (u UpdateTodo) normalize() UpdateTodo {
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		u.Title = &title
	}
	return u
}
