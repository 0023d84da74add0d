package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where `migrate create` writes new files, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

// EmbeddedDir is the path of the compiled-in migrations inside Migrations.
const EmbeddedDir = "migrations"

// Migrations holds the SQL shipped inside every binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// goose keeps dialect and base FS in package globals.
var gooseMu sync.Mutex

func configure(fsys fs.FS) error {
	goose.SetBaseFS(fsys)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Run executes a goose command against migrations on disk.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return run(ctx, db, nil, dir, command, args...)
}

// RunEmbedded executes a goose command against the compiled-in migrations.
func RunEmbedded(ctx context.Context, db *sql.DB, command string, args ...string) error {
	return run(ctx, db, Migrations, EmbeddedDir, command, args...)
}

func run(ctx context.Context, db *sql.DB, fsys fs.FS, dir, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := configure(fsys); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	var fsys fs.FS
	if dir == EmbeddedDir {
		fsys = Migrations
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := configure(fsys); err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}
