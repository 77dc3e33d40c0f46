// Command migrate manages the Postgres schema.
//
//	migrate [-dir path] up|down|status|redo
//	migrate [-dir path] to <YYYYMMDDHHMMSS>
//	migrate [-dir path] create <name>
//	migrate [-dir path] validate
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/migrate"
)

var errUsage = errors.New("usage: migrate [-dir path] up|down|status|redo|to <version>|create <name>|validate")

// offline commands only touch files.
var offline = map[string]func(dir string, args []string) error{
	"create": func(dir string, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		path, err := migrate.CreateSQLMigration(dir, args[0])
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	},
	"validate": func(dir string, _ []string) error {
		if err := migrate.ValidateDir(dir); err != nil {
			return err
		}
		fmt.Println("migrations valid")
		return nil
	},
}

// online commands need a Postgres connection.
var online = map[string]func(ctx context.Context, sqlDB *sql.DB, dir string, args []string) error{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"redo":   gooseCommand("redo"),
	"to": func(ctx context.Context, sqlDB *sql.DB, dir string, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		return migrate.MigrateToVersion(ctx, sqlDB, dir, args[0])
	},
}

func gooseCommand(name string) func(context.Context, *sql.DB, string, []string) error {
	return func(ctx context.Context, sqlDB *sql.DB, dir string, args []string) error {
		return migrate.Run(ctx, sqlDB, dir, name, args...)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := fs.String("dir", migrate.DefaultDir, "migrations directory; the default reads the embedded files")
	if err := fs.Parse(argv); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		return errUsage
	}
	name, args := fs.Arg(0), fs.Args()[1:]

	if cmd, ok := offline[name]; ok {
		return cmd(*dir, args)
	}
	cmd, ok := online[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": name, "dir": *dir})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()
	if client.IsSQLite() {
		return errors.New("goose migrations target postgres; sqlite dev databases use GROCERYHUB_AUTO_MIGRATE")
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	if err := cmd(ctx, sqlDB, *dir, args); err != nil {
		logg.Error(ctx, "migration command failed", err)
		return err
	}
	logg.Info(ctx, "migration command finished")
	return nil
}
