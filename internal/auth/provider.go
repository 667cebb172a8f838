// Package auth verifies identities and carries the key material claims
// attached to them.
package auth

import "context"

// Identity is a verified caller. Claims hold the custom claims visible to
// this request.
type Identity struct {
	UID    string
	Claims CustomClaims
}

// Provider is the identity backend.
type Provider interface {
	Verify(ctx context.Context, token string) (Identity, error)
	// SetCustomClaims replaces the persistent custom claims of uid. Only the
	// wrapped key is persisted; session secrets travel in session tokens.
	SetCustomClaims(ctx context.Context, uid string, claims CustomClaims) error
	// MintSessionToken returns a short lived token carrying secret.
	MintSessionToken(ctx context.Context, uid, secret string) (string, error)
	DeleteIdentity(ctx context.Context, uid string) error
}

// ClaimsStore persists custom claims for the local provider.
type ClaimsStore interface {
	SaveClaims(ctx context.Context, uid string, claims CustomClaims) error
	LookupClaims(ctx context.Context, uid string) (CustomClaims, bool, error)
	DeleteClaims(ctx context.Context, uid string) error
}
