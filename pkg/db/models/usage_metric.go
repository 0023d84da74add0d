package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

// UsageMetric is the per-account, per-UTC-day usage row. Day is formatted YYYY-MM-DD.
type UsageMetric struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID              uuid.UUID `gorm:"column:account_id;type:uuid;not null;uniqueIndex:idx_usage_metrics_account_day,priority:1"`
	Day                    string    `gorm:"column:day;type:text;not null;uniqueIndex:idx_usage_metrics_account_day,priority:2"`
	DescriptionGenerations int       `gorm:"column:description_generations;not null;default:0"`
	ImageGenerations       int       `gorm:"column:image_generations;not null;default:0"`
	PricingGenerations     int       `gorm:"column:pricing_generations;not null;default:0"`
	PublishingGenerations  int       `gorm:"column:publishing_generations;not null;default:0"`
	CreditsUsed            int       `gorm:"column:credits_used;not null;default:0"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Count returns the counter for a capability.
func (u UsageMetric) Count(c enums.Capability) int {
	switch c {
	case enums.CapabilityDescription:
		return u.DescriptionGenerations
	case enums.CapabilityImage:
		return u.ImageGenerations
	case enums.CapabilityPricing:
		return u.PricingGenerations
	case enums.CapabilityPublishing:
		return u.PublishingGenerations
	default:
		return 0
	}
}

// Add increments the counter for a capability and the credit accumulator.
func (u *UsageMetric) Add(c enums.Capability, credits int) {
	switch c {
	case enums.CapabilityDescription:
		u.DescriptionGenerations++
	case enums.CapabilityImage:
		u.ImageGenerations++
	case enums.CapabilityPricing:
		u.PricingGenerations++
	case enums.CapabilityPublishing:
		u.PublishingGenerations++
	}
	u.CreditsUsed += credits
}
