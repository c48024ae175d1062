package shared

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = fmt.Errorf("shared: %w", httpx.ErrNotFound)
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing. Both CSRF failures
	// render as an expired page.
	ErrCSRFTokenMissing = fmt.Errorf("csrf token missing: %w", httpx.ErrSessionExpired)
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = fmt.Errorf("csrf token mismatch: %w", httpx.ErrSessionExpired)
)
