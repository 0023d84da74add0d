package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

const RequestIDHeader = "X-Request-Id"

// inbound ids end up in logs and response headers
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID tags each request with an id, reusing a well-formed inbound
// X-Request-Id and minting a uuid otherwise.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !validRequestID.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
