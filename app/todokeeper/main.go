package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jrazmi/todokeeper/app/todokeeper/config"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/jrazmi/todokeeper/schema/reflector"
	"github.com/jrazmi/todokeeper/sdk/environment"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

var build = "develop"
var appName = "TODOKEEPER"

func main() {
	if err := environment.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.NewFromEnv(appName, logger.WithService(appName))
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuring logger:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.ErrorContext(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	log.InfoContext(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	var svc config.Service
	if err := environment.ParseEnvTags(appName, &svc); err != nil {
		return fmt.Errorf("parsing service config: %w", err)
	}

	// :*: START DATABASES :*:
	dbCfg, err := postgresdb.OptionsFromEnv(appName)
	if err != nil {
		return err
	}

	if !svc.SkipCreate {
		if _, err := postgresdb.CreateDatabase(ctx, dbCfg.DatabaseURL, log.Logger); err != nil {
			return err
		}
	}

	pg, err := postgresdb.Open(ctx, dbCfg, postgresdb.WithLogger(log.Logger))
	if err != nil {
		return err
	}
	defer func() {
		log.InfoContext(ctx, "shutdown", "status", "closing database connection")
		pg.Close()
	}()

	report, err := postgresdb.Migrate(ctx, pg, log.Logger)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "startup", "status", "migrations complete", "applied", len(report.Applied), "skipped", len(report.Skipped))

	store := reflector.NewPostgresStore(pg, pg.Database())
	if err := reflector.NewReflector(store).Verify(ctx, svc.SchemaName, config.SchemaExpectations()...); err != nil {
		return err
	}
	// END DATABASES //

	// REPOSITORIES //
	log.InfoContext(ctx, "startup", "status", "initializing repository support")
	app := config.Todokeeper{
		Build:        build,
		Logger:       log,
		Pool:         pg,
		Repositories: config.NewPostgresRepositories(log, pg),
	}
	// END REPOSITORIES //

	current, err := app.Repositories.SchemaMigrations.Current(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	log.InfoContext(ctx, "startup", "status", "ready", "schema_version", current.Version)

	ticker := time.NewTicker(svc.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.Pool.LogStats(ctx)
		case <-ctx.Done():
			log.InfoContext(context.WithoutCancel(ctx), "shutdown", "status", "shutdown started")
			return nil
		}
	}
}
