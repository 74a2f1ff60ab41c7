package shared

import (
	"errors"

	"github.com/sitdb/sitdb/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = httpx.NewError(httpx.ErrUnauthorized, "Email atau password tidak valid")
	// ErrUnauthenticated is returned when no principal is attached to the request.
	ErrUnauthenticated = httpx.NewError(httpx.ErrUnauthorized, "Silakan login terlebih dahulu")
	// ErrForbidden is the generic role or ownership refusal.
	ErrForbidden = httpx.NewError(httpx.ErrForbidden, "Tidak memiliki izin")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrInvalidToken covers malformed, expired or forged bearer tokens.
	ErrInvalidToken = httpx.NewError(httpx.ErrUnauthorized, "Token tidak valid")
)
