package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/commercepilot-backend/pkg/auth/session"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequestIDEchoesSafeIDsOnly(t *testing.T) {
	handler := RequestID(logger.Nop())(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected echoed id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if _, err := uuid.Parse(rec.Header().Get(RequestIDHeader)); err != nil {
		t.Fatalf("expected generated uuid, got %q", rec.Header().Get(RequestIDHeader))
	}
}

func TestRecovererReturns500(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("panic value leaked: %s", rec.Body.String())
	}
}

func TestRecovererLogsRequestID(t *testing.T) {
	var logs strings.Builder
	logg := logger.New(logger.Options{ServiceName: "test", Output: &logs})
	handler := RequestID(logg)(Recoverer(logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "trace-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) != "trace-42" {
		t.Fatalf("expected request id header on the 500 response")
	}
	if !strings.Contains(logs.String(), `"request_id":"trace-42"`) {
		t.Fatalf("expected request id in panic log, got %s", logs.String())
	}
}

func TestThrottle(t *testing.T) {
	handler := Throttle(config.ThrottleConfig{RequestsPerSecond: 0.001, Burst: 1}, nil)(http.HandlerFunc(okHandler))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %d %d", first.Code, second.Code)
	}

	disabled := Throttle(config.ThrottleConfig{}, nil)(http.HandlerFunc(okHandler))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("disabled throttle rejected a request")
		}
	}
}

func TestLoggingObservesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(Logging(logger.Nop(), httpMetrics))
	r.Get("/api/listings/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/"+uuid.NewString(), nil))

	count, err := testutil.GatherAndCount(reg, "cp_http_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one series, got %d", count)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "cp_http_requests_total" {
			continue
		}
		for _, label := range mf.GetMetric()[0].GetLabel() {
			if label.GetName() == "route" && label.GetValue() != "/api/listings/{id}" {
				t.Fatalf("expected route pattern label, got %q", label.GetValue())
			}
			if label.GetName() == "status" && label.GetValue() != "404" {
				t.Fatalf("expected status 404, got %q", label.GetValue())
			}
		}
	}
}

type stubLoader struct {
	sess *session.Session
	err  error
}

func (s stubLoader) Load(context.Context, *http.Request) (*session.Session, error) {
	return s.sess, s.err
}

type stubResolver struct {
	account *models.Account
	err     error
}

func (s stubResolver) Resolve(context.Context, *session.Session) (*models.Account, error) {
	return s.account, s.err
}

func TestSessionLoadFailureContinuesAnonymous(t *testing.T) {
	var seen *session.Session
	handler := Session(stubLoader{sess: &session.Session{}, err: errors.New("redis down")}, logger.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = session.FromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK || seen == nil || seen.State() != session.Anonymous {
		t.Fatalf("expected anonymous pass-through, code=%d", rec.Code)
	}
}

func TestRequireAccount(t *testing.T) {
	account := &models.Account{ID: uuid.New(), Email: "a@x.com"}

	var got uuid.UUID
	allowed := RequireAccount(stubResolver{account: account}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = AccountIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	allowed.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || got != account.ID {
		t.Fatalf("expected admitted account, code=%d id=%s", rec.Code, got)
	}

	denied := RequireAccount(stubResolver{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")}, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { t.Fatalf("must not run") }))
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	if _, ok := AccountFromContext(context.Background()); ok {
		t.Fatalf("empty context must not carry an account")
	}
}
