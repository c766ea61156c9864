package shared

import (
	"fmt"

	"github.com/workboard/projectguard/internal/platform/httpx"
)

var (
	// ErrMissingCredentials indicates a request without a bearer token.
	ErrMissingCredentials = fmt.Errorf("missing credentials: %w", httpx.ErrUnauthorized)
	// ErrInvalidCredentials indicates a bearer token that failed verification.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
)
