package auth

const (
	LoginPath                = "/auth/login"
	SignupPath               = "/auth/signup"
	LogoutPath               = "/auth/logout"
	PasswordResetRequestPath = "/auth/password-reset/request"
	PasswordResetConfirmPath = "/auth/password-reset/confirm"
	PasswordChangePath       = "/auth/password/change"
	MePath                   = "/users/me"
)

// CredentialsRequest is the body of login and signup
type CredentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// PasswordResetRequest asks the backend to email a reset token
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirm sets a new password using an emailed token
type PasswordResetConfirm struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

// PasswordChange replaces the password of the logged in user
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// MessageResponse is the generic {"message": ...} acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
