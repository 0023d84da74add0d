package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CommercePilot-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency concurrently.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CommercePilot-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			g       errgroup.Group
			checks  = make(map[string]string, len(deps))
			healthy = true
		)
		for name, dep := range deps {
			g.Go(func() error {
				err := dep.Ping(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					healthy = false
					checks[name] = "down"
					if logg != nil {
						logg.Error(logg.WithField(r.Context(), "dependency", name), "readiness check failed", err)
					}
					return nil
				}
				checks[name] = "up"
				return nil
			})
		}
		_ = g.Wait()

		if !healthy {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "service not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
