// Package backend selects and boots the store implementation named by config.
package backend

import (
	"context"
	"fmt"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/internal/store/memory"
	"github.com/angelmondragon/commercepilot-backend/internal/store/relational"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/db"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/migrate"
)

// Open returns the configured store. Relational backends are connected and,
// when auto-migrate is on, brought up to date before being returned. The
// caller owns Close.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (store.Store, error) {
	if !cfg.DB.IsRelational() {
		logg.Warn(logg.WithField(ctx, "driver", cfg.DB.Driver), "using in-memory store; data is lost on restart")
		return memory.New(), nil
	}

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRun(ctx, cfg, logg, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return relational.NewFromClient(client), nil
}
