package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/jrazmi/todokeeper/core/repositories"
	"github.com/jrazmi/todokeeper/core/repositories/schemamigrationsrepo"
	"github.com/jrazmi/todokeeper/core/repositories/schemamigrationsrepo/stores/schemamigrationspgxstore"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/jrazmi/todokeeper/schema"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

// CreateDatabase creates the database named in databaseURL when missing.
func CreateDatabase(ctx context.Context, log *slog.Logger, databaseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	created, err := postgresdb.CreateDatabase(ctx, databaseURL, log)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	log.InfoContext(ctx, "db-create completed", "created", created)
	return nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, log *slog.Logger, pool *postgresdb.Pool) error {
	// Increase timeout for migrations
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	log.InfoContext(ctx, "migration started", "step", "checking database status")

	if err := postgresdb.StatusCheck(ctx, pool); err != nil {
		return fmt.Errorf("database status check failed: %w", err)
	}

	report, err := postgresdb.Migrate(ctx, pool, log)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	log.InfoContext(ctx, "migrations completed", "applied", report.Applied, "skipped", len(report.Skipped))
	return nil
}

// MigrateStatus prints every migration file and when it was applied.
func MigrateStatus(ctx context.Context, log *logger.Logger, w io.Writer, pool *postgresdb.Pool) error {
	states, err := postgresdb.NewMigrator(pool, schema.MigrationsFS, schema.MigrationsDir, log.Logger).Status(ctx)
	if err != nil {
		return err
	}

	repo := schemamigrationsrepo.NewRepository(log, schemamigrationspgxstore.NewStore(log, pool))
	current, err := repo.Current(ctx)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		current.Version = "none"
	case err != nil:
		return err
	}

	return writeStatus(w, current.Version, states)
}

func writeStatus(w io.Writer, current string, states []postgresdb.MigrationState) error {
	fmt.Fprintf(w, "current version: %s\n\n", current)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATUS\tAPPLIED AT")
	for _, s := range states {
		status, at := "pending", ""
		if s.Applied {
			status, at = "applied", s.AppliedAt.Format(time.RFC3339)
		}
		if s.Modified {
			status = "modified"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Version, status, at)
	}
	return tw.Flush()
}
