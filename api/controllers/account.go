package controllers

import (
	"net/http"

	"github.com/angelmondragon/commercepilot-backend/api/middleware"
	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/api/validators"
	"github.com/angelmondragon/commercepilot-backend/internal/accounts"
	"github.com/angelmondragon/commercepilot-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

func AccountChangePassword(svc accounts.Service, cookies cookieWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, ok := middleware.AccountIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body accounts.ChangePasswordRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sess := session.FromContext(ctx)
		if err := svc.ChangePassword(ctx, sess, accountID, body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := cookies.WriteCookie(w, sess); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write session cookie"))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"password_changed": true})
	}
}

func AccountDelete(svc accounts.Service, cookies cookieWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, ok := middleware.AccountIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		if err := svc.Delete(ctx, session.FromContext(ctx), accountID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cookies.ClearCookie(w)
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
