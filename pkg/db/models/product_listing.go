package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

// ProductListing is account-owned content produced with metered capabilities.
type ProductListing struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey"`
	AccountID    uuid.UUID           `gorm:"column:account_id;type:uuid;not null;index:idx_product_listings_account_created,priority:1"`
	Title        string              `gorm:"column:title;not null"`
	Description  string              `gorm:"column:description;not null;default:''"`
	ImageURL     *string             `gorm:"column:image_url"`
	PriceCents   *int64              `gorm:"column:price_cents"`
	Status       enums.ListingStatus `gorm:"column:status;not null;default:'draft'"`
	Capabilities []enums.Capability  `gorm:"column:capabilities;type:jsonb;serializer:json"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_product_listings_account_created,priority:2"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
