package config

import (
	"time"

	"github.com/jrazmi/todokeeper/core/repositories/labelsrepo"
	"github.com/jrazmi/todokeeper/core/repositories/labelsrepo/stores/labelspgxstore"
	"github.com/jrazmi/todokeeper/core/repositories/schemamigrationsrepo"
	"github.com/jrazmi/todokeeper/core/repositories/schemamigrationsrepo/stores/schemamigrationspgxstore"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo/stores/todospgxstore"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/jrazmi/todokeeper/schema/reflector"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

// Service holds the settings of the todokeeper service itself. Database and
// logging settings live with their packages.
type Service struct {
	SchemaName    string        `env:"SCHEMA_NAME" default:"public" validate:"required"`
	StatsInterval time.Duration `env:"STATS_INTERVAL" default:"1m" validate:"gt=0"`
	SkipCreate    bool          `env:"SKIP_CREATE_DATABASE" default:"false"`
}

// Repositories represents the repositories this instance of todokeeper needs.
type Repositories struct {
	Todos            *todosrepo.Repository
	Labels           *labelsrepo.Repository
	SchemaMigrations *schemamigrationsrepo.Repository
}

// NewPostgresRepositories builds every repository over the pool.
func NewPostgresRepositories(log *logger.Logger, pool *postgresdb.Pool) Repositories {
	return Repositories{
		Todos:            todosrepo.NewRepository(log, todospgxstore.NewStore(log, pool)),
		Labels:           labelsrepo.NewRepository(log, labelspgxstore.NewStore(log, pool)),
		SchemaMigrations: schemamigrationsrepo.NewRepository(log, schemamigrationspgxstore.NewStore(log, pool)),
	}
}

// SchemaExpectations lists the tables the pgx stores read and the column
// types they bind.
func SchemaExpectations() []reflector.TableExpectation {
	return []reflector.TableExpectation{
		todospgxstore.Expectation(),
		labelspgxstore.Expectation(),
	}
}

// Todokeeper is the overall configuration for the todokeeper service.
type Todokeeper struct {
	Build        string
	Logger       *logger.Logger
	Pool         *postgresdb.Pool
	Repositories Repositories
}
