package shared

import (
	"context"

	"github.com/workboard/projectguard/internal/policy"
)

type identityContextKey struct{}

// ContextWithIdentity stores the authenticated actor in context.
func ContextWithIdentity(ctx context.Context, identity policy.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the authenticated actor from context.
func IdentityFromContext(ctx context.Context) (policy.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(policy.Identity)
	return identity, ok
}
