package commands

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jrazmi/todokeeper/app/todokeeper/config"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/jrazmi/todokeeper/schema/reflector"
)

// ReflectSchema reflects the current database schema into a JSON file.
func ReflectSchema(ctx context.Context, log *slog.Logger, args []string, pool *postgresdb.Pool) error {
	fs := flag.NewFlagSet("reflect-schema", flag.ContinueOnError)

	schema := fs.String("schema", "public", "Schema to reflect")
	outputDir := fs.String("output", "schema/reflector/output", "Output directory for generated files")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	log.InfoContext(ctx, "reflect-schema started",
		"schema", *schema,
		"output", *outputDir,
	)

	store := reflector.NewPostgresStore(pool, pool.Database())
	ref := reflector.NewReflector(store)

	reflectedSchema, err := ref.Reflect(ctx, *schema)
	if err != nil {
		return fmt.Errorf("reflect schema: %w", err)
	}

	log.InfoContext(ctx, "discovered tables", "count", len(reflectedSchema.Tables))

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	jsonPath := filepath.Join(*outputDir, *schema+".json")
	f, err := os.Create(jsonPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", jsonPath, err)
	}
	defer f.Close()

	if err := reflector.WriteJSON(f, reflectedSchema); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	log.InfoContext(ctx, "generated JSON", "path", jsonPath)

	return f.Close()
}

// CheckSchema verifies that the tables the stores use have the expected
// column types.
func CheckSchema(ctx context.Context, log *slog.Logger, args []string, pool *postgresdb.Pool) error {
	fs := flag.NewFlagSet("check-schema", flag.ContinueOnError)
	schema := fs.String("schema", "public", "Schema to check")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	store := reflector.NewPostgresStore(pool, pool.Database())
	if err := reflector.NewReflector(store).Verify(ctx, *schema, config.SchemaExpectations()...); err != nil {
		return err
	}

	log.InfoContext(ctx, "schema matches", "database", store.GetDatabaseName(), "schema", *schema)
	return nil
}
