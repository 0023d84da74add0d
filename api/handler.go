package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/commercepilot-backend/api/controllers"
	"github.com/angelmondragon/commercepilot-backend/api/routes"
	"github.com/angelmondragon/commercepilot-backend/internal/accounts"
	"github.com/angelmondragon/commercepilot-backend/internal/auth"
	"github.com/angelmondragon/commercepilot-backend/internal/cron"
	"github.com/angelmondragon/commercepilot-backend/internal/dashboard"
	"github.com/angelmondragon/commercepilot-backend/internal/leads"
	"github.com/angelmondragon/commercepilot-backend/internal/listings"
	"github.com/angelmondragon/commercepilot-backend/internal/plans"
	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/internal/subscriptions"
	"github.com/angelmondragon/commercepilot-backend/internal/usage"
	"github.com/angelmondragon/commercepilot-backend/pkg/auth/session"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
	redisclient "github.com/angelmondragon/commercepilot-backend/pkg/redis"
	"github.com/angelmondragon/commercepilot-backend/pkg/security"
)

const (
	seedLockName = "plan-seed"
	// a crashed seeder blocks other instances for at most this long
	seedLockTTL = time.Minute
)

// Params are the process-level resources the API is assembled from.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Store    store.Store
	KV       redisclient.KV
	Registry *prometheus.Registry
}

// App holds the wired services behind the HTTP surface.
type App struct {
	cfg   *config.Config
	logg  *logger.Logger
	plans plans.Service
	deps  routes.Dependencies
}

// New wires every service over the given store and KV backend.
func New(params Params) (*App, error) {
	cfg, logg := params.Config, params.Logger
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Store == nil || params.KV == nil {
		return nil, fmt.Errorf("store and kv are required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	reg := params.Registry
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	ledgerMetrics := metrics.NewLedgerMetrics(reg)

	seedLock, err := cron.NewRedisLock(params.KV, seedLockName, seedLockTTL)
	if err != nil {
		return nil, err
	}
	catalog, err := plans.NewService(plans.ServiceParams{Store: params.Store, Logger: logg, SeedLock: seedLock})
	if err != nil {
		return nil, fmt.Errorf("plans service: %w", err)
	}
	ledger, err := subscriptions.NewService(subscriptions.ServiceParams{Store: params.Store, Plans: catalog, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("subscriptions service: %w", err)
	}
	meter, err := usage.NewService(usage.ServiceParams{
		Store:   params.Store,
		Ledger:  ledger,
		Config:  cfg.Usage,
		Metrics: ledgerMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("usage service: %w", err)
	}

	sessions, err := session.NewManager(params.KV, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	hasher, err := security.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	authSvc, err := auth.NewService(auth.ServiceParams{
		Store:    params.Store,
		Ledger:   ledger,
		Hasher:   hasher,
		Sessions: sessions,
		Metrics:  ledgerMetrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	accountSvc, err := accounts.NewService(accounts.ServiceParams{Store: params.Store, Hasher: hasher, Sessions: sessions, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("accounts service: %w", err)
	}
	dashboardSvc, err := dashboard.NewService(dashboard.ServiceParams{Plans: catalog, Ledger: ledger, Usage: meter, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("dashboard service: %w", err)
	}
	leadSvc, err := leads.NewService(params.Store, logg)
	if err != nil {
		return nil, fmt.Errorf("leads service: %w", err)
	}
	listingSvc, err := listings.NewService(listings.ServiceParams{
		Store:      params.Store,
		Usage:      meter,
		CreditCost: cfg.Usage.ListingCreditCost,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("listings service: %w", err)
	}

	return &App{
		cfg:   cfg,
		logg:  logg,
		plans: catalog,
		deps: routes.Dependencies{
			Config:      cfg,
			Logger:      logg,
			Registry:    reg,
			HTTPMetrics: metrics.NewHTTPMetrics(reg),
			Sessions:    sessions,
			KV:          params.KV,
			Readiness: map[string]controllers.Pinger{
				"store": params.Store,
				"kv":    params.KV,
			},
			Auth:          authSvc,
			Accounts:      accountSvc,
			Plans:         catalog,
			Subscriptions: ledger,
			Usage:         meter,
			Dashboard:     dashboardSvc,
			Leads:         leadSvc,
			Listings:      listingSvc,
		},
	}, nil
}

// Seed installs the plan catalog when the seed flag is on and no plans exist.
func (a *App) Seed(ctx context.Context) error {
	if !a.cfg.FeatureFlags.SeedPlans {
		return nil
	}
	inserted, err := a.plans.Seed(ctx)
	if err != nil {
		return err
	}
	if inserted {
		a.logg.Info(ctx, "plan catalog seeded")
	}
	return nil
}

// Handler returns the HTTP handler that cmd/api wires into its server.
func (a *App) Handler() http.Handler {
	return routes.NewRouter(a.deps)
}
