package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/pkg/auth/session"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

type sessionLoader interface {
	Load(ctx context.Context, r *http.Request) (*session.Session, error)
}

// Session loads the request's session into the context. Store failures are
// logged and the request continues as anonymous.
func Session(loader sessionLoader, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := loader.Load(ctx, r)
			if err != nil && logg != nil {
				logg.Error(ctx, "session.load_failed", err)
			}
			if accountID, ok := sess.AccountID(); ok && logg != nil {
				ctx = logg.WithAccountID(ctx, accountID.String())
			}
			next.ServeHTTP(w, r.WithContext(session.WithContext(ctx, sess)))
		})
	}
}

type accountResolver interface {
	Resolve(ctx context.Context, sess *session.Session) (*models.Account, error)
}

type accountCtxKey struct{}

// RequireAccount admits only requests whose session resolves to a live
// account, and stores that account on the context. A session that outlived
// its account is revoked by the resolver and rejected here.
func RequireAccount(resolver accountResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			account, err := resolver.Resolve(ctx, session.FromContext(ctx))
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, accountCtxKey{}, account)))
		})
	}
}

// AccountFromContext returns the account admitted by RequireAccount.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	account, ok := ctx.Value(accountCtxKey{}).(*models.Account)
	return account, ok && account != nil
}

// AccountIDFromContext returns the admitted account's id.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return account.ID, true
}
