package controllers

import (
	"net/http"

	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/api/validators"
	"github.com/angelmondragon/commercepilot-backend/internal/leads"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

func LeadCreate(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body leads.CreateLeadRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lead, err := svc.Create(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, leads.ToDTO(lead))
	}
}
