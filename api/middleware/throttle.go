package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

// Throttle applies one process-wide token bucket. It is a no-op unless
// both a rate and a burst are configured.
func Throttle(cfg config.ThrottleConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	if !cfg.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "server is busy, retry shortly"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
