package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/commercepilot-backend/api"
	"github.com/angelmondragon/commercepilot-backend/internal/store/backend"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
	"github.com/angelmondragon/commercepilot-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := backend.Open(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap store", err)
		os.Exit(1)
	}

	kv, err := redis.Open(ctx, cfg.Redis, logg)
	if err != nil {
		_ = st.Close()
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	closeAll := func() {
		if err := multierr.Combine(kv.Close(), st.Close()); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}

	app, err := api.New(api.Params{
		Config:   cfg,
		Logger:   logg,
		Store:    st,
		KV:       kv,
		Registry: metrics.NewRegistry(),
	})
	if err != nil {
		closeAll()
		logg.Error(ctx, "failed to wire api", err)
		os.Exit(1)
	}

	if err := app.Seed(ctx); err != nil {
		closeAll()
		logg.Error(ctx, "failed to seed plan catalog", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := api.NewServer(cfg, ":"+port, app.Handler())

	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   server.Addr,
		"driver": cfg.DB.Driver,
	})
	logg.Info(ctx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
			exitCode = 1
		}
		cancel()
	}

	closeAll()
	logg.Info(context.Background(), "api server stopped")
	os.Exit(exitCode)
}
