package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

// Plan is a seeded subscription tier.
type Plan struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name           string         `gorm:"column:name;not null;uniqueIndex:idx_plans_name"`
	DisplayName    string         `gorm:"column:display_name;not null"`
	Description    string         `gorm:"column:description;not null;default:''"`
	PriceCents     *int64         `gorm:"column:price_cents"`
	Currency       enums.Currency `gorm:"column:currency;not null;default:'USD'"`
	ProductCredits *int           `gorm:"column:product_credits"`
	APIAccess      bool           `gorm:"column:api_access;not null;default:false"`
	ContactSales   bool           `gorm:"column:contact_sales;not null;default:false"`
	Features       []string       `gorm:"column:features;type:jsonb;serializer:json"`
	SortOrder      int            `gorm:"column:sort_order;not null;default:0;index"`
	Popular        bool           `gorm:"column:popular;not null;default:false"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// Unlimited reports whether the plan has no credit allotment cap.
func (p Plan) Unlimited() bool {
	return p.ProductCredits == nil
}
