package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is an authenticated principal. The password is only ever stored hashed.
type Account struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"column:email;type:text;not null;uniqueIndex:idx_accounts_email"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	Username     *string   `gorm:"column:username"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
