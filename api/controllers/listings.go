package controllers

import (
	"net/http"

	"github.com/angelmondragon/commercepilot-backend/api/middleware"
	"github.com/angelmondragon/commercepilot-backend/api/responses"
	"github.com/angelmondragon/commercepilot-backend/api/validators"
	"github.com/angelmondragon/commercepilot-backend/internal/listings"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

func ListingCreate(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, ok := middleware.AccountIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body listings.CreateListingRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		listing, err := svc.Create(ctx, accountID, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, listings.ToDTO(*listing))
	}
}

func ListingList(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, ok := middleware.AccountIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := svc.List(ctx, accountID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, listings.ToPageDTO(page))
	}
}

func ListingGet(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, ok := middleware.AccountIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		id, err := validators.URLParamUUID(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		listing, err := svc.Get(ctx, accountID, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, listings.ToDTO(*listing))
	}
}

func ListingDelete(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, ok := middleware.AccountIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		id, err := validators.URLParamUUID(r, "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, accountID, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
