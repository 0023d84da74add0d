// Package leads captures anonymous marketing contacts. Leads are never
// linked to accounts.
package leads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/internal/store"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

type CreateLeadRequest struct {
	Email   string  `json:"email" validate:"required,email,max=254"`
	Company *string `json:"company,omitempty" validate:"omitempty,max=200"`
	Consent bool    `json:"consent"`
}

type LeadDTO struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Company   *string   `json:"company,omitempty"`
	Consent   bool      `json:"consent"`
	CreatedAt time.Time `json:"created_at"`
}

func ToDTO(l *models.Lead) LeadDTO {
	return LeadDTO{ID: l.ID, Email: l.Email, Company: l.Company, Consent: l.Consent, CreatedAt: l.CreatedAt}
}

type Service interface {
	Create(ctx context.Context, req CreateLeadRequest) (*models.Lead, error)
}

type service struct {
	store store.LeadStore
	logg  *logger.Logger
}

func NewService(st store.LeadStore, logg *logger.Logger) (Service, error) {
	if st == nil {
		return nil, fmt.Errorf("lead store is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{store: st, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, req CreateLeadRequest) (*models.Lead, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	lead := &models.Lead{Email: email, Consent: req.Consent}
	if req.Company != nil {
		if company := strings.TrimSpace(*req.Company); company != "" {
			lead.Company = &company
		}
	}
	if err := s.store.CreateLead(ctx, lead); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create lead")
	}
	s.logg.Info(s.logg.WithField(ctx, "lead_id", lead.ID.String()), "lead captured")
	return lead, nil
}
