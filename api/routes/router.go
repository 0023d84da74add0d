package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/commercepilot-backend/api/controllers"
	"github.com/angelmondragon/commercepilot-backend/api/middleware"
	"github.com/angelmondragon/commercepilot-backend/internal/accounts"
	"github.com/angelmondragon/commercepilot-backend/internal/auth"
	"github.com/angelmondragon/commercepilot-backend/internal/dashboard"
	"github.com/angelmondragon/commercepilot-backend/internal/leads"
	"github.com/angelmondragon/commercepilot-backend/internal/listings"
	"github.com/angelmondragon/commercepilot-backend/internal/plans"
	"github.com/angelmondragon/commercepilot-backend/internal/subscriptions"
	"github.com/angelmondragon/commercepilot-backend/internal/usage"
	"github.com/angelmondragon/commercepilot-backend/pkg/auth/session"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
	redisclient "github.com/angelmondragon/commercepilot-backend/pkg/redis"
)

// Dependencies is everything the HTTP surface needs from cmd/api.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	// HTTPMetrics may be nil; requests are then only logged.
	HTTPMetrics *metrics.HTTPMetrics

	Sessions *session.Manager
	KV       redisclient.KV
	// Readiness lists the dependencies probed by /health/ready.
	Readiness map[string]controllers.Pinger

	Auth          auth.Service
	Accounts      accounts.Service
	Plans         plans.Service
	Subscriptions subscriptions.Service
	Usage         usage.Service
	Dashboard     dashboard.Service
	Leads         leads.Service
	Listings      listings.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.CORS),
		middleware.Throttle(cfg.Throttle, logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Session(deps.Sessions, logg))

		r.Get("/pricing-plans", controllers.PricingPlans(deps.Plans, logg))
		r.Get("/pricing-plans/{id}", controllers.PricingPlan(deps.Plans, logg))
		r.Post("/leads", controllers.LeadCreate(deps.Leads, logg))

		r.With(middleware.AuthRateLimit(middleware.RegisterPolicy(cfg.AuthRateLimit), deps.KV, logg)).
			Post("/register", controllers.AuthRegister(deps.Auth, deps.Sessions, logg))
		r.With(middleware.AuthRateLimit(middleware.LoginPolicy(cfg.AuthRateLimit), deps.KV, logg)).
			Post("/login", controllers.AuthLogin(deps.Auth, deps.Sessions, logg))
		r.Post("/logout", controllers.AuthLogout(deps.Auth, deps.Sessions, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAccount(deps.Auth, logg))

			r.Get("/user", controllers.CurrentUser(logg))
			r.Post("/user/change-password", controllers.AccountChangePassword(deps.Accounts, deps.Sessions, logg))
			r.Delete("/user/delete-account", controllers.AccountDelete(deps.Accounts, deps.Sessions, logg))

			r.Get("/users/{id}/subscription", controllers.AccountSubscription(deps.Subscriptions, logg))
			r.Post("/subscription/change-plan", controllers.SubscriptionChangePlan(deps.Subscriptions, logg))

			r.Post("/usage", controllers.UsageRecord(deps.Usage, logg))
			r.Get("/usage/history", controllers.UsageHistory(deps.Usage, cfg.Usage, logg))
			r.Get("/dashboard/metrics", controllers.DashboardMetrics(deps.Dashboard, cfg.Usage, logg))

			r.Route("/listings", func(r chi.Router) {
				r.Post("/", controllers.ListingCreate(deps.Listings, logg))
				r.Get("/", controllers.ListingList(deps.Listings, logg))
				r.Get("/{id}", controllers.ListingGet(deps.Listings, logg))
				r.Delete("/{id}", controllers.ListingDelete(deps.Listings, logg))
			})
		})
	})

	return r
}
