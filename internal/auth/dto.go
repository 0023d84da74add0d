package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
)

// RegisterRequest is the registration body.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72,password"`
}

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// AccountDTO is the public account shape returned by every auth endpoint.
type AccountDTO struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username *string   `json:"username,omitempty"`
}

func ToAccountDTO(a *models.Account) AccountDTO {
	return AccountDTO{ID: a.ID, Email: a.Email, Username: a.Username}
}
