package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/commercepilot-backend/internal/store/relational"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/db"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

// MaybeRun brings the schema up to date at startup when the auto-migrate flag
// is on. Postgres runs the embedded goose migrations; SQLite uses gorm
// AutoMigrate because the goose files are written in the Postgres dialect.
func MaybeRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if client == nil || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": client.Driver()})

	switch client.Driver() {
	case config.DriverSQLite:
		logg.Info(ctx, "running gorm auto-migrate")
		if err := relational.AutoMigrate(ctx, client.DB()); err != nil {
			return err
		}
	case config.DriverPostgres:
		sqlDB, err := client.DB().DB()
		if err != nil {
			return fmt.Errorf("extracting sql.DB: %w", err)
		}
		logg.Info(ctx, "running goose migrations")
		if err := RunEmbedded(ctx, sqlDB, "up"); err != nil {
			return fmt.Errorf("running goose up: %w", err)
		}
	default:
		return fmt.Errorf("auto-migrate: unsupported driver %q", client.Driver())
	}

	logg.Info(ctx, "migrations completed")
	return nil
}
