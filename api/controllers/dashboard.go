package controllers

import (
	"net/http"

	"github.com/angelmondragon/commercepilot-backend/api/middleware"
	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/api/validators"
	"github.com/angelmondragon/commercepilot-backend/internal/dashboard"
	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

func DashboardMetrics(svc dashboard.Service, cfg config.UsageConfig, logg *logger.Logger) http.HandlerFunc {
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
		m, err := svc.Metrics(ctx, accountID, days)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dashboard.ToDTO(m))
	}
}
