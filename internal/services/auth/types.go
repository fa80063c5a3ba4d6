package auth

import (
	"errors"

	"github.com/ivankudzin/daycare-admin/internal/domain/model"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidLoginReply = errors.New("login response is missing access token or user")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrSessionExpired    = errors.New("session expired")
)

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthError is the structured failure handed back to callers instead of a Go
// error. Notified means the message was already shown to the user.
type AuthError struct {
	Name     string
	Message  string
	Notified bool
	Err      error
}

type AuthResult struct {
	Success    bool
	RedirectTo string
	Error      *AuthError
}

type CheckResult struct {
	Authenticated bool
	Logout        bool
	RedirectTo    string
	Error         *AuthError
}

type OnErrorResult struct {
	Logout     bool
	RedirectTo string
	Err        error
}

type loginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        *model.User `json:"user"`
}
