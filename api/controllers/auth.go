package controllers

import (
	"net/http"

	"github.com/angelmondragon/commercepilot-backend/api/middleware"
	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/api/validators"
	"github.com/angelmondragon/commercepilot-backend/internal/auth"
	"github.com/angelmondragon/commercepilot-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

// cookieWriter is the cookie half of session.Manager.
type cookieWriter interface {
	WriteCookie(w http.ResponseWriter, s *session.Session) error
	ClearCookie(w http.ResponseWriter)
}

// AuthRegister creates an account on the basic plan and signs it in.
func AuthRegister(svc auth.Service, cookies cookieWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sess := session.FromContext(ctx)
		account, err := svc.Register(ctx, sess, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := cookies.WriteCookie(w, sess); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write session cookie"))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, auth.ToAccountDTO(account))
	}
}

// AuthLogin verifies credentials and reissues the session.
func AuthLogin(svc auth.Service, cookies cookieWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			// a malformed login body is still a failed login
			responses.WriteError(ctx, logg, w, pkgerrors.InvalidCredentials())
			return
		}

		sess := session.FromContext(ctx)
		account, err := svc.Login(ctx, sess, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := cookies.WriteCookie(w, sess); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write session cookie"))
			return
		}

		responses.WriteSuccess(w, auth.ToAccountDTO(account))
	}
}

// AuthLogout always succeeds. A revoke failure is logged, and the cookie is
// cleared regardless.
func AuthLogout(svc auth.Service, cookies cookieWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := svc.Logout(ctx, session.FromContext(ctx)); err != nil && logg != nil {
			logg.Error(ctx, "logout revoke failed", err)
		}
		cookies.ClearCookie(w)
		responses.WriteSuccess(w, map[string]bool{"logged_out": true})
	}
}

// CurrentUser returns the account admitted by RequireAccount.
func CurrentUser(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := middleware.AccountFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		responses.WriteSuccess(w, auth.ToAccountDTO(account))
	}
}
