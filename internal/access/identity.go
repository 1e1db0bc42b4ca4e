package access

import "context"

// Identity is what the upstream identity provider vouches for.
type Identity struct {
	ExternalID string
	Email      string
}

// TokenResolver turns an opaque bearer token into an Identity. Failures wrap
// apperr.ErrUnauthorized.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}
