// Package identity turns verified bearer tokens into policy identities.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/workboard/projectguard/internal/policy"
	"github.com/workboard/projectguard/internal/shared"
)

// Claims is the token payload: the standard subject plus a role claim.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier checks HMAC-signed bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier builds a Verifier. An empty issuer skips the iss check.
func NewVerifier(secret, issuer string, leeway time.Duration) (*Verifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("identity: secret must be at least 32 bytes")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: leeway}, nil
}

// Verify validates the token and extracts the actor. Expired, unsigned,
// foreign-issuer and role-less tokens all fail with
// shared.ErrInvalidCredentials.
func (v *Verifier) Verify(token string) (policy.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return policy.Identity{}, shared.ErrMissingCredentials
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return policy.Identity{}, fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
	}
	if !parsed.Valid {
		return policy.Identity{}, shared.ErrInvalidCredentials
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return policy.Identity{}, fmt.Errorf("%w: missing subject", shared.ErrInvalidCredentials)
	}
	role, err := policy.ParseRole(claims.Role)
	if err != nil {
		return policy.Identity{}, fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
	}
	return policy.Identity{UserID: subject, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
