package accounts

// ChangePasswordRequest is the body of POST /api/user/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=72"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72,password"`
}
