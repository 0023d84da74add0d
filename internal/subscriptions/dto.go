package subscriptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
)

// SubscriptionDTO is the public representation of a subscription.
type SubscriptionDTO struct {
	ID               uuid.UUID  `json:"id"`
	AccountID        uuid.UUID  `json:"account_id"`
	PlanID           uuid.UUID  `json:"plan_id"`
	CreditsRemaining int        `json:"credits_remaining"`
	CreditsTotal     *int       `json:"credits_total"`
	Unlimited        bool       `json:"unlimited"`
	Active           bool       `json:"active"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// ToDTO maps a subscription row to its public shape.
func ToDTO(sub models.Subscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:               sub.ID,
		AccountID:        sub.AccountID,
		PlanID:           sub.PlanID,
		CreditsRemaining: sub.CreditsRemaining,
		CreditsTotal:     sub.CreditsTotal,
		Unlimited:        sub.Unlimited(),
		Active:           sub.Active,
		StartedAt:        sub.StartedAt,
		EndedAt:          sub.EndedAt,
	}
}

// ChangePlanRequest is the body of POST /api/subscription/change-plan.
type ChangePlanRequest struct {
	PlanID uuid.UUID `json:"plan_id" validate:"required"`
}
