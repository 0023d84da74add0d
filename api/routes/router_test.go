package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/commercepilot-backend/api/controllers"
	"github.com/angelmondragon/commercepilot-backend/internal/auth"
	"github.com/angelmondragon/commercepilot-backend/pkg/auth/session"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/metrics"
	"github.com/angelmondragon/commercepilot-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubAuthService struct{}

func (stubAuthService) Register(context.Context, *session.Session, auth.RegisterRequest) (*models.Account, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubAuthService) Login(context.Context, *session.Session, auth.LoginRequest) (*models.Account, error) {
	return nil, pkgerrors.InvalidCredentials()
}

func (stubAuthService) Logout(context.Context, *session.Session) error {
	return nil
}

func (stubAuthService) Resolve(context.Context, *session.Session) (*models.Account, error) {
	return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		Session: config.SessionConfig{
			CookieName: "cp_session",
			HashKey:    strings.Repeat("k", 32),
			TTL:        time.Hour,
		},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow:     time.Minute,
			LoginEmailLimit: 2,
			LoginIPLimit:    100,
		},
		CORS:  config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Usage: config.UsageConfig{DefaultHistoryDays: 7, MaxHistoryDays: 90},
	}
}

func newTestRouter(t *testing.T, withRegistry bool) http.Handler {
	t.Helper()
	cfg := testConfig()
	kv := redis.NewMemoryStore()
	sessions, err := session.NewManager(kv, cfg.Session)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	deps := Dependencies{
		Config:    cfg,
		Logger:    logger.Nop(),
		Sessions:  sessions,
		KV:        kv,
		Readiness: map[string]controllers.Pinger{"store": stubPinger{}},
		Auth:      stubAuthService{},
	}
	if withRegistry {
		deps.Registry = metrics.NewRegistry()
		deps.HTTPMetrics = metrics.NewHTTPMetrics(deps.Registry)
	}
	return NewRouter(deps)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	router := newTestRouter(t, false)
	protected := []struct{ method, path string }{
		{http.MethodGet, "/api/user"},
		{http.MethodPost, "/api/user/change-password"},
		{http.MethodDelete, "/api/user/delete-account"},
		{http.MethodGet, "/api/users/5b0c7bd9-8f3c-4bb4-9f1e-5b7f3ad1c001/subscription"},
		{http.MethodPost, "/api/subscription/change-plan"},
		{http.MethodPost, "/api/usage"},
		{http.MethodGet, "/api/usage/history"},
		{http.MethodGet, "/api/dashboard/metrics"},
		{http.MethodGet, "/api/listings"},
		{http.MethodPost, "/api/listings"},
		{http.MethodGet, "/api/listings/5b0c7bd9-8f3c-4bb4-9f1e-5b7f3ad1c001"},
	}
	for _, tc := range protected {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", tc.method, tc.path, resp.Code)
		}
	}
}

func TestLogoutIsPublic(t *testing.T) {
	router := newTestRouter(t, false)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/logout", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestLoginIsRateLimitedPerEmail(t *testing.T) {
	router := newTestRouter(t, false)
	body := `{"email":"a@x.com","password":"secret123"}`

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusBadRequest || codes[1] != http.StatusBadRequest {
		t.Fatalf("expected first two attempts to reach the handler, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third attempt to be limited, got %v", codes)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, true)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `route="/health/live"`) {
		t.Fatalf("expected route label in metrics output")
	}
}

func TestMetricsDisabledWithoutRegistry(t *testing.T) {
	router := newTestRouter(t, false)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
