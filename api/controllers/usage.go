package controllers

import (
	"net/http"

	"github.com/angelmondragon/commercepilot-backend/api/middleware"
	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/api/validators"
	"github.com/angelmondragon/commercepilot-backend/internal/usage"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

func UsageRecord(svc usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, ok := middleware.AccountIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body usage.RecordUsageRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cost := body.Cost
		if cost == 0 {
			cost = 1
		}

		result, err := svc.Record(ctx, accountID, body.Capability, cost)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, usage.ToResultDTO(result))
	}
}

func UsageHistory(svc usage.Service, cfg config.UsageConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, ok := middleware.AccountIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		days, err := validators.ParseQueryInt(r, "days", cfg.DefaultHistoryDays, 1, cfg.MaxHistoryDays)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rows, err := svc.History(ctx, accountID, days)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, usage.ToDTOs(rows))
	}
}
