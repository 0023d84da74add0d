// Package listings stores account-owned product listings. Creating a listing
// meters each capability it was produced with.
package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/internal/usage"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
	"github.com/angelmondragon/commercepilot-backend/pkg/pagination"
)

type Service interface {
	// Create meters every declared capability and stores the listing in one
	// transaction. An exhausted balance leaves nothing behind.
	Create(ctx context.Context, accountID uuid.UUID, req CreateListingRequest) (*models.ProductListing, error)
	List(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*Page, error)
	Get(ctx context.Context, accountID, id uuid.UUID) (*models.ProductListing, error)
	Delete(ctx context.Context, accountID, id uuid.UUID) error
}

type Page struct {
	Items      []models.ProductListing
	NextCursor string
}

type ServiceParams struct {
	Store      store.Store
	Usage      usage.Service
	CreditCost int
	Logger     *logger.Logger
}

type service struct {
	store      store.Store
	usage      usage.Service
	creditCost int
	logg       *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if params.Usage == nil {
		return nil, fmt.Errorf("usage service is required")
	}
	cost := params.CreditCost
	if cost <= 0 {
		cost = 1
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{store: params.Store, usage: params.Usage, creditCost: cost, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, accountID uuid.UUID, req CreateListingRequest) (*models.ProductListing, error) {
	listing, err := buildListing(accountID, req)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		meter := s.usage.WithStore(tx)
		for _, c := range listing.Capabilities {
			if _, err := meter.Record(ctx, accountID, c, s.creditCost); err != nil {
				return err
			}
		}
		if err := tx.CreateProductListing(ctx, listing); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create listing")
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create listing")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"account_id": accountID.String(),
		"listing_id": listing.ID.String(),
	}), "listing created")
	return listing, nil
}

func buildListing(accountID uuid.UUID, req CreateListingRequest) (*models.ProductListing, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	listing := &models.ProductListing{
		AccountID:   accountID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		ImageURL:    req.ImageURL,
		Status:      enums.ListingStatusDraft,
	}
	if req.Status != "" {
		if !req.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown status %q", req.Status))
		}
		listing.Status = req.Status
	}

	if req.Price != nil {
		price, err := decimal.NewFromString(strings.TrimSpace(*req.Price))
		if err != nil || price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be a non-negative amount")
		}
		if !price.Equal(price.Round(2)) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price supports at most two decimals")
		}
		cents := price.Shift(2).IntPart()
		listing.PriceCents = &cents
	}

	seen := map[enums.Capability]bool{}
	for _, c := range req.Capabilities {
		if !c.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown capability %q", c))
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		listing.Capabilities = append(listing.Capabilities, c)
	}
	return listing, nil
}

func (s *service) List(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	page := store.ListingPage{Limit: pagination.LimitWithBuffer(params.Limit)}
	if cursor != nil {
		page.Before = &store.ListingCursor{CreatedAt: cursor.CreatedAt, ID: cursor.ID}
	}

	rows, err := s.store.ListProductListings(ctx, accountID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list listings")
	}
	items, next := pagination.Trim(rows, params.Limit, func(l models.ProductListing) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return &Page{Items: items, NextCursor: next}, nil
}

func (s *service) Get(ctx context.Context, accountID, id uuid.UUID) (*models.ProductListing, error) {
	listing, err := s.store.GetProductListing(ctx, accountID, id)
	if err != nil {
		return nil, mapStoreError(err, "get listing")
	}
	return listing, nil
}

func (s *service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	if err := s.store.DeleteProductListing(ctx, accountID, id); err != nil {
		return mapStoreError(err, "delete listing")
	}
	return nil
}

// listings owned by another account are reported as missing
func mapStoreError(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
