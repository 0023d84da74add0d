package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

// bodies larger than this are not inspected for an email
const maxPeekBytes = 64 << 10

type windowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy caps attempts on one auth endpoint per client address
// and per submitted email. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	Name       string
	Window     time.Duration
	IPLimit    int
	EmailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{Name: name, Window: window, IPLimit: ipLimit, EmailLimit: emailLimit}
}

func LoginPolicy(cfg config.AuthRateLimitConfig) AuthRateLimitPolicy {
	return NewAuthRateLimitPolicy("login", cfg.LoginWindow, cfg.LoginIPLimit, cfg.LoginEmailLimit)
}

func RegisterPolicy(cfg config.AuthRateLimitConfig) AuthRateLimitPolicy {
	return NewAuthRateLimitPolicy("register", cfg.RegisterWindow, cfg.RegisterIPLimit, cfg.RegisterEmailLimit)
}

func (p AuthRateLimitPolicy) active() bool {
	return p.Window > 0 && (p.IPLimit > 0 || p.EmailLimit > 0)
}

type attemptLimiter struct {
	policy  AuthRateLimitPolicy
	counter windowCounter
	logg    *logger.Logger
}

// hit counts one attempt for key and returns a typed error once the budget
// for the window is spent.
func (l attemptLimiter) hit(ctx context.Context, dimension, key string, limit int) error {
	if limit <= 0 || key == "" {
		return nil
	}
	scope := l.policy.Name + ":" + dimension + ":" + key
	ok, attempts, err := l.counter.FixedWindowAllow(ctx, scope, int64(limit), l.policy.Window)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable")
	}
	if ok {
		return nil
	}
	if l.logg != nil {
		l.logg.Warn(l.logg.WithFields(ctx, map[string]any{
			"policy":    l.policy.Name,
			"dimension": dimension,
			"attempts":  attempts,
			"limit":     limit,
		}), "auth.rate_limited")
	}
	return pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later")
}

// AuthRateLimit guards a credential endpoint. The JSON body is peeked for an
// email and handed on unchanged. Emails are lowercased and hashed before
// they become counter keys.
func AuthRateLimit(policy AuthRateLimitPolicy, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if counter == nil || !policy.active() {
			return next
		}
		limiter := attemptLimiter{policy: policy, counter: counter, logg: logg}
		retryAfter := strconv.Itoa(int(policy.Window.Seconds()))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fail := func(err error) {
				if pkgerrors.IsCode(err, pkgerrors.CodeRateLimit) {
					w.Header().Set("Retry-After", retryAfter)
				}
				responses.WriteError(ctx, logg, w, err)
			}

			if err := limiter.hit(ctx, "ip", remoteIP(r), policy.IPLimit); err != nil {
				fail(err)
				return
			}
			if policy.EmailLimit > 0 {
				email, err := peekEmail(r)
				if err != nil {
					fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				if err := limiter.hit(ctx, "email", emailKey(email), policy.EmailLimit); err != nil {
					fail(err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// peekEmail reads the email field and restores r.Body for the next handler.
func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
	if err != nil {
		return "", err
	}
	// replay the peeked prefix ahead of whatever was not read
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(raw), r.Body), Closer: r.Body}

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return "", nil
	}
	return body.Email, nil
}

type replayBody struct {
	io.Reader
	io.Closer
}

func emailKey(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

// remoteIP prefers the first X-Forwarded-For hop, since the API runs behind
// a load balancer.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
