package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/db"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd <command> [flags]

commands:
  up | down | status | redo   goose commands against the database
  version -version <v>        migrate up or down to an exact version
  create -name <name>         scaffold a new SQL migration in -dir
  validate                    check file names and goose sections

-dir defaults to the migrations compiled into the binary; create and
validate default to ` + migrate.DefaultDir + `.
`

func main() {
	cmd := flag.String("cmd", "up", "migration command")
	dir := flag.String("dir", "", "migrations directory on disk")
	name := flag.String("name", "", "migration name for create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for version")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate", Level: logger.ParseLevel(os.Getenv(config.EnvLogLevel))})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"cmd": *cmd, "dir": *dir})

	if err := run(ctx, logg, *cmd, *dir, *name, *version); err != nil {
		logg.Error(ctx, "migrate failed", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "migrate finished")
}

func run(ctx context.Context, logg *logger.Logger, cmd, dir, name, version string) error {
	switch cmd {
	case "create":
		if name == "" {
			return fmt.Errorf("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(orDefault(dir), name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		if dir == "" {
			return migrate.ValidateFS(migrate.Migrations, migrate.EmbeddedDir)
		}
		return migrate.ValidateDir(dir)
	}

	dbCfg, err := config.LoadDB()
	if err != nil {
		return err
	}
	if dbCfg.Driver != config.DriverPostgres {
		return fmt.Errorf("goose migrations target postgres; driver %q is migrated at api startup", dbCfg.Driver)
	}

	client, err := db.New(ctx, *dbCfg, logg)
	if err != nil {
		return err
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	switch cmd {
	case "up", "down", "status", "redo":
		return goose(ctx, sqlDB, dir, cmd)
	case "version":
		if version == "" {
			return fmt.Errorf("-version is required for version")
		}
		target := dir
		if target == "" {
			target = migrate.EmbeddedDir
		}
		return migrate.MigrateToVersion(ctx, sqlDB, target, version)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func goose(ctx context.Context, sqlDB *sql.DB, dir, cmd string) error {
	if dir == "" {
		return migrate.RunEmbedded(ctx, sqlDB, cmd)
	}
	return migrate.Run(ctx, sqlDB, dir, cmd)
}

func orDefault(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}
