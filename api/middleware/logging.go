package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
)

// responseTap remembers the status and body size written by the handler.
type responseTap struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (t *responseTap) WriteHeader(status int) {
	if t.status == 0 {
		t.status = status
	}
	t.ResponseWriter.WriteHeader(status)
}

func (t *responseTap) Write(b []byte) (int, error) {
	if t.status == 0 {
		t.status = http.StatusOK
	}
	n, err := t.ResponseWriter.Write(b)
	t.bytes += n
	return n, err
}

func (t *responseTap) Unwrap() http.ResponseWriter { return t.ResponseWriter }

// Logging emits request.start and request.complete around every request and
// feeds httpMetrics under the chi route pattern. Server errors complete at
// warn level.
func Logging(logg *logger.Logger, httpMetrics *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{"method": r.Method, "path": r.URL.Path})
				logg.Info(ctx, "request.start")
			}

			tap := &responseTap{ResponseWriter: w}
			began := time.Now()
			next.ServeHTTP(tap, r.WithContext(ctx))
			elapsed := time.Since(began)

			status := tap.status
			if status == 0 {
				status = http.StatusOK
			}
			httpMetrics.Observe(r.Method, routePattern(r), status, elapsed)

			if logg == nil {
				return
			}
			ctx = logg.WithFields(ctx, map[string]any{
				"status":      status,
				"bytes":       tap.bytes,
				"duration_ms": elapsed.Milliseconds(),
			})
			if status >= http.StatusInternalServerError {
				logg.Warn(ctx, "request.complete")
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}

// routePattern labels metrics by chi pattern; unmatched paths share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
