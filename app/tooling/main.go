package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/jrazmi/todokeeper/app/tooling/commands"
	"github.com/jrazmi/todokeeper/infrastructure/postgresdb"
	"github.com/jrazmi/todokeeper/sdk/environment"
	"github.com/jrazmi/todokeeper/sdk/logger"
)

var build = "develop"
var appName = "TOOLING"

// commandNames lists every command run accepts.
var commandNames = []string{"db-create", "migrate", "migrate-status", "check-schema", "reflect-schema"}

func processCommands(ctx context.Context, log *logger.Logger, command string, args []string, pg *postgresdb.Pool) error {
	switch command {
	case "migrate":
		log.InfoContext(ctx, "running migration")
		if err := commands.Migrate(ctx, log.Logger, pg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.InfoContext(ctx, "migration completed successfully")
		return nil

	case "migrate-status":
		if err := commands.MigrateStatus(ctx, log, os.Stdout, pg); err != nil {
			return fmt.Errorf("migration status failed: %w", err)
		}
		return nil

	case "check-schema":
		if err := commands.CheckSchema(ctx, log.Logger, args, pg); err != nil {
			return fmt.Errorf("check schema failed: %w", err)
		}
		return nil

	case "reflect-schema":
		log.InfoContext(ctx, "running schema reflection")
		if err := commands.ReflectSchema(ctx, log.Logger, args, pg); err != nil {
			return fmt.Errorf("reflect schema failed: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printHelp() {
	fmt.Println("Available commands:")
	fmt.Println("  db-create      - create the database named in PG_DATABASE_URL")
	fmt.Println("  migrate        - apply pending schema migrations")
	fmt.Println("  migrate-status - list applied and pending migrations")
	fmt.Println("  check-schema   - verify the tables the stores rely on")
	fmt.Println("  reflect-schema - reflect current database schema to a JSON file")
	fmt.Println()
	fmt.Println("Use 'go run app/tooling/main.go <command> --help' for command-specific help.")
}

func run(ctx context.Context, log *logger.Logger) error {
	log.InfoContext(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	var command string
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	switch command {
	case "", "help", "--help", "-h":
		printHelp()
		return nil
	}
	if !slices.Contains(commandNames, command) {
		printHelp()
		return fmt.Errorf("unknown command %q", command)
	}

	dbCfg, err := postgresdb.OptionsFromEnv(appName)
	if err != nil {
		return fmt.Errorf("configuring postgres support: %w", err)
	}

	if command == "db-create" {
		return commands.CreateDatabase(ctx, log.Logger, dbCfg.DatabaseURL)
	}

	pg, err := postgresdb.Open(ctx, dbCfg, postgresdb.WithLogger(log.Logger))
	if err != nil {
		return fmt.Errorf("configuring postgres support: %w", err)
	}
	defer func() {
		log.InfoContext(ctx, "shutdown", "status", "closing database connection")
		pg.Close()
	}()
	log.InfoContext(ctx, "init", "service", "postgres")

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	cmdCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- processCommands(cmdCtx, log, command, args, pg)
	}()

	select {
	case err := <-done:
		return err

	case sig := <-shutdown:
		log.InfoContext(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		cancel()

		// Give a short time for commands to roll back
		timer := time.NewTimer(5 * time.Second)
		defer timer.Stop()

		select {
		case err := <-done:
			return err
		case <-timer.C:
			return fmt.Errorf("shutdown timeout: %s", sig)
		}
	}
}

func main() {
	if err := environment.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.NewFromEnv(appName)
	if err != nil {
		fmt.Println("oh no we couldn't even get logging going.")
		os.Exit(1)
	}
	ctx := context.Background()

	if err = run(ctx, log); err != nil {
		log.ErrorContext(ctx, "startup", "err", err)
		os.Exit(1)
	}
}
