package controllers

import (
	"net/http"

	"github.com/angelmondragon/commercepilot-backend/api/middleware"
	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/api/validators"
	"github.com/angelmondragon/commercepilot-backend/internal/subscriptions"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

// AccountSubscription returns the active subscription of {id}, which must be
// the caller's own account.
func AccountSubscription(ledger subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.URLParamUUID(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if caller, ok := middleware.AccountIDFromContext(ctx); !ok || caller != id {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "you can only read your own subscription"))
			return
		}

		sub, err := ledger.GetActive(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptions.ToDTO(*sub))
	}
}

func SubscriptionChangePlan(ledger subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, ok := middleware.AccountIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body subscriptions.ChangePlanRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := ledger.ChangePlan(ctx, accountID, body.PlanID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptions.ToDTO(*sub))
	}
}
