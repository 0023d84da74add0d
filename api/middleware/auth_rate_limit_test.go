package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
)

type countingStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingStore() *countingStore {
	return &countingStore{counts: map[string]int64{}}
}

func (c *countingStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[scope]++
	return c.counts[scope] <= limit, c.counts[scope], nil
}

type downStore struct{}

func (downStore) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return false, 0, errors.New("redis down")
}

func loginAttempt(h http.Handler, remote, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestAuthRateLimitPassesBodyThrough(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 2, 2), newCountingStore(), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.Contains(t, string(body), `"email":"tester@example.com"`)
			w.WriteHeader(http.StatusOK)
		}))

	rec := loginAttempt(handler, "1.2.3.4:5678", `{"email":"tester@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimitKeepsBodyBeyondPeekWindow(t *testing.T) {
	payload := `{"email":"tester@example.com","password":"` + strings.Repeat("p", 2*maxPeekBytes) + `"}`
	var received int
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 2, 2), newCountingStore(), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, r.Body.Close())
			received = len(body)
			w.WriteHeader(http.StatusOK)
		}))

	rec := loginAttempt(handler, "1.2.3.4:5678", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, len(payload), received)
}

func TestAuthRateLimitBlocks(t *testing.T) {
	cases := []struct {
		name    string
		policy  AuthRateLimitPolicy
		remotes []string
		emails  []string
		want    []int
	}{
		{
			name:    "per email across addresses",
			policy:  NewAuthRateLimitPolicy("login", time.Minute, 0, 2),
			remotes: []string{"1.1.1.1:1", "2.2.2.2:2", "3.3.3.3:3"},
			emails:  []string{"a@example.com", "a@example.com", "a@example.com"},
			want:    []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name:    "per address across emails",
			policy:  NewAuthRateLimitPolicy("register", time.Minute, 1, 0),
			remotes: []string{"5.6.7.8:1", "5.6.7.8:2"},
			emails:  []string{"a@example.com", "b@example.com"},
			want:    []int{http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name:    "case variants share a budget",
			policy:  NewAuthRateLimitPolicy("login", time.Minute, 0, 1),
			remotes: []string{"", ""},
			emails:  []string{"Case@Example.com", " case@example.com"},
			want:    []int{http.StatusOK, http.StatusTooManyRequests},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newCountingStore()
			handler := AuthRateLimit(tc.policy, store, nil)(http.HandlerFunc(okHandler))
			for i := range tc.want {
				rec := loginAttempt(handler, tc.remotes[i], `{"email":"`+tc.emails[i]+`"}`)
				require.Equal(t, tc.want[i], rec.Code, "attempt %d", i+1)
				if rec.Code == http.StatusTooManyRequests {
					require.Equal(t, string(pkgerrors.CodeRateLimit), errorCode(t, rec))
					require.Equal(t, "60", rec.Header().Get("Retry-After"))
				}
			}
			for scope := range store.counts {
				require.NotContains(t, strings.ToLower(scope), "example.com", "emails must be hashed")
			}
		})
	}
}

func TestAuthRateLimitUsesForwardedFor(t *testing.T) {
	store := newCountingStore()
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 5, 0), store, nil)(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{}`))
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, int64(1), store.counts["login:ip:9.9.9.9"])
}

func TestAuthRateLimitStoreFailureIs503(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 5, 5), downStore{}, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatalf("next handler must not run")
		}))
	rec := loginAttempt(handler, "1.2.3.4:1", `{}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Empty(t, rec.Header().Get("Retry-After"))
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	called := false
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", 0, 1, 1), downStore{}, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/login", nil))
	require.True(t, called)
}
