package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription binds an account to a plan with a mutable credit balance.
// CreditsTotal is nil for unlimited plans, which are never decremented.
type Subscription struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	AccountID        uuid.UUID  `gorm:"column:account_id;type:uuid;not null;index;uniqueIndex:idx_subscriptions_one_active,where:active = true"`
	PlanID           uuid.UUID  `gorm:"column:plan_id;type:uuid;not null;index"`
	CreditsRemaining int        `gorm:"column:credits_remaining;not null;default:0;check:chk_subscriptions_credits_nonnegative,credits_remaining >= 0"`
	CreditsTotal     *int       `gorm:"column:credits_total"`
	Active           bool       `gorm:"column:active;not null"`
	StartedAt        time.Time  `gorm:"column:started_at;not null"`
	EndedAt          *time.Time `gorm:"column:ended_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Unlimited reports whether the subscription carries no numeric balance.
func (s Subscription) Unlimited() bool {
	return s.CreditsTotal == nil
}
