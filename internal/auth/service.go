// Package auth implements login, signup, logout and password management on
// top of the cookie-authenticated API client.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/dvcrn/callme-client/internal/session"
	"github.com/dvcrn/callme-client/internal/validate"
	"github.com/rs/zerolog"
)

// ErrNotAuthenticated is returned by Me when the backend does not know us
var ErrNotAuthenticated = errors.New("not authenticated")

// API is the subset of apiclient.Client used here
type API interface {
	Get(ctx context.Context, path string, query url.Values, out interface{}) error
	Post(ctx context.Context, path string, in, out interface{}) error
}

// Session receives the logged in user and is cleared on logout
type Session interface {
	SetUser(u session.User)
	User() *session.User
	Reset(reason string)
	Teardown(reason string) bool
}

type Service struct {
	api     API
	session Session
	logger  zerolog.Logger
}

func NewService(api API, sess Session, logger zerolog.Logger) *Service {
	return &Service{
		api:     api,
		session: sess,
		logger:  logger.With().Str("component", "auth").Logger(),
	}
}

// Login authenticates with email and password. Cookies and cached data left
// by any earlier account are dropped first; the backend answers with fresh
// cookies, after which the user profile is fetched and cached.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (*session.User, error) {
	var errs validate.Errors
	errs.Email("email", email)
	if password == "" {
		errs.Add("password", "Password is required")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	s.session.Reset("login")

	body := CredentialsRequest{Email: email, Password: password, RememberMe: rememberMe}
	if err := s.api.Post(ctx, LoginPath, body, nil); err != nil {
		s.logger.Warn().Err(err).Str("email", email).Msg("Login rejected")
		return nil, fmt.Errorf("login failed: %w", err)
	}

	u, err := s.Me(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("user_id", u.ID).Msg("Successfully logged in")
	return u, nil
}

// Signup creates an account and logs it in
func (s *Service) Signup(ctx context.Context, email, password string, rememberMe bool) (*session.User, error) {
	var errs validate.Errors
	errs.Email("email", email)
	errs.Password("password", password)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	s.session.Reset("signup")

	body := CredentialsRequest{Email: email, Password: password, RememberMe: rememberMe}
	if err := s.api.Post(ctx, SignupPath, body, nil); err != nil {
		s.logger.Warn().Err(err).Str("email", email).Msg("Signup rejected")
		return nil, fmt.Errorf("signup failed: %w", err)
	}

	u, err := s.Me(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("user_id", u.ID).Msg("Account created successfully")
	return u, nil
}

// Logout tells the backend to drop the cookies. Local state is cleared even
// when that request fails.
func (s *Service) Logout(ctx context.Context) error {
	err := s.api.Post(ctx, LogoutPath, struct{}{}, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Logout request failed, clearing local session anyway")
	}
	s.session.Teardown("logout")
	return err
}

// Me fetches the current user and caches it in the session
func (s *Service) Me(ctx context.Context) (*session.User, error) {
	var u session.User
	if err := s.api.Get(ctx, MePath, nil, &u); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	s.session.SetUser(u)
	return &u, nil
}

// Current returns the cached user, fetching it when the session has none
func (s *Service) Current(ctx context.Context) (*session.User, error) {
	if u := s.session.User(); u != nil {
		return u, nil
	}
	return s.Me(ctx)
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var errs validate.Errors
	errs.Email("email", email)
	if err := errs.Err(); err != nil {
		return "", err
	}

	var resp MessageResponse
	if err := s.api.Post(ctx, PasswordResetRequestPath, PasswordResetRequest{Email: email}, &resp); err != nil {
		return "", fmt.Errorf("failed to request password reset: %w", err)
	}
	return resp.Message, nil
}

func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	var errs validate.Errors
	if token == "" {
		errs.Add("reset_token", "Reset token is required")
	}
	errs.Password("new_password", newPassword)
	if err := errs.Err(); err != nil {
		return err
	}

	body := PasswordResetConfirm{ResetToken: token, NewPassword: newPassword}
	if err := s.api.Post(ctx, PasswordResetConfirmPath, body, nil); err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	var errs validate.Errors
	if currentPassword == "" {
		errs.Add("current_password", "Current password is required")
	}
	errs.Password("new_password", newPassword)
	if err := errs.Err(); err != nil {
		return err
	}

	body := PasswordChange{CurrentPassword: currentPassword, NewPassword: newPassword}
	if err := s.api.Post(ctx, PasswordChangePath, body, nil); err != nil {
		return fmt.Errorf("password change failed: %w", err)
	}
	return nil
}
