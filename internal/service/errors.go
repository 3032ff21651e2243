package service

import (
	"errors"
	"fmt"

	"loanportal/userhub/internal/repository"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrConflict            = errors.New("user conflicts with an existing record")
	ErrIdentityConflict    = errors.New("email is linked to a different external identity")
	ErrUserDisabled        = errors.New("user is disabled or deleted")
	ErrEmailNotVerified    = errors.New("email is not verified by the identity provider")
	ErrRefreshTokenInvalid = errors.New("refresh token invalid or revoked")
	ErrStoreUnavailable    = errors.New("user store unavailable")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// storeError wraps a repository failure, marking connectivity problems as
// ErrStoreUnavailable so callers can tell transient from permanent failures.
func storeError(op string, err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
