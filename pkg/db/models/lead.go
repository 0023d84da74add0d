package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead is an anonymous marketing contact. It has no relationship to Account.
type Lead struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email     string    `gorm:"column:email;type:text;not null;index"`
	Company   *string   `gorm:"column:company"`
	Consent   bool      `gorm:"column:consent;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
