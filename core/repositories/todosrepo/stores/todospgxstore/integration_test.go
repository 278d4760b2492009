package todospgxstore_test

import (
	"context"
	"testing"

	"github.com/jrazmi/todokeeper/core/repositories/todosrepo"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo/stores/todospgxstore"
	"github.com/jrazmi/todokeeper/core/repositories/todosrepo/todostest"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb/pgtest"
	"github.com/jrazmi/todokeeper/schema/reflector"
	"github.com/jrazmi/todokeeper/sdk/logger"
	"github.com/stretchr/testify/require"
)

func TestStore_Postgres(t *testing.T) {
	db := pgtest.New(t)

	t.Run("schema", func(t *testing.T) {
		r := reflector.NewReflector(reflector.NewPostgresStore(db.Pool, db.Pool.Database()))
		require.NoError(t, r.Verify(context.Background(), "public", todospgxstore.Expectation()))
	})

	todostest.Run(t, func(t *testing.T) *todosrepo.Repository {
		return todosrepo.NewRepository(logger.NewDiscard(), todospgxstore.NewStore(logger.NewDiscard(), db.Pool))
	})
}
