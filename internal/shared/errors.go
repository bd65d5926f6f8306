package shared

import (
	"errors"
	"fmt"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = fmt.Errorf("not found: %w", httpx.ErrNotFound)
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage returns a message that can be shown to end users without
// leaking driver or infrastructure details.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, httpx.ErrValidation),
		errors.Is(err, httpx.ErrNotFound),
		errors.Is(err, httpx.ErrConflict),
		errors.Is(err, httpx.ErrDuplicate),
		errors.Is(err, httpx.ErrForbidden),
		errors.Is(err, httpx.ErrUnauthorized):
		return err.Error()
	case errors.Is(err, httpx.ErrUnavailable):
		return "service temporarily unavailable"
	default:
		return "unexpected error"
	}
}
