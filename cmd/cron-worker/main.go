package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/commercepilot-backend/internal/cron"
	"github.com/angelmondragon/commercepilot-backend/internal/plans"
	"github.com/angelmondragon/commercepilot-backend/internal/store/backend"
	"github.com/angelmondragon/commercepilot-backend/internal/subscriptions"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
	"github.com/angelmondragon/commercepilot-backend/pkg/redis"
)

const lockName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	metricsAddr := flag.String("metrics-addr", "", "optional listen address for /metrics")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if !cfg.DB.IsRelational() {
		logg.Warn(ctx, "cron worker is running against a private in-memory store; repairs will not reach the api")
	}

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
	defer func() {
		if err := multierr.Combine(kv.Close(), st.Close()); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	exit := func(msg string, err error) {
		logg.Error(ctx, msg, err)
		stop()
		os.Exit(1)
	}

	catalog, err := plans.NewService(plans.ServiceParams{Store: st, Logger: logg})
	if err != nil {
		exit("failed to create plans service", err)
	}
	ledger, err := subscriptions.NewService(subscriptions.ServiceParams{Store: st, Plans: catalog, Logger: logg})
	if err != nil {
		exit("failed to create subscription ledger", err)
	}

	repair, err := cron.NewSubscriptionRepairJob(cron.SubscriptionRepairJobParams{
		Logger:    logg,
		Accounts:  st,
		Ledger:    ledger,
		BatchSize: cfg.Cron.RepairBatchSize,
	})
	if err != nil {
		exit("failed to create repair job", err)
	}

	lock, err := cron.NewRedisLock(kv, lockName, 0)
	if err != nil {
		exit("failed to create cron lock", err)
	}

	reg := metrics.NewRegistry()
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(repair),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		exit("failed to create cron service", err)
	}

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics listener stopped", err)
			}
		}()
		defer srv.Close()
	}

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			exit("cron cycle failed", err)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		exit("cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}
