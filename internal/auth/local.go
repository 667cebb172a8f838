package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rememberme/api/internal/util"
)

// LocalProvider issues and verifies its own HS256 tokens. Custom claims live
// in a ClaimsStore and are merged into every verified identity.
type LocalProvider struct {
	secret      []byte
	claims      ClaimsStore
	identityTTL time.Duration
	sessionTTL  time.Duration
	now         func() time.Time
}

func NewLocalProvider(secret []byte, claims ClaimsStore, identityTTL, sessionTTL time.Duration) *LocalProvider {
	return &LocalProvider{
		secret:      secret,
		claims:      claims,
		identityTTL: identityTTL,
		sessionTTL:  sessionTTL,
		now:         time.Now,
	}
}

func (p *LocalProvider) Verify(ctx context.Context, token string) (Identity, error) {
	parsed, err := ParseToken(p.secret, token)
	if err != nil {
		return Identity{}, err
	}
	identity := Identity{UID: parsed.Sub, Claims: parsed.CustomClaims}
	stored, ok, err := p.claims.LookupClaims(ctx, parsed.Sub)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup claims: %w", err)
	}
	if ok && identity.Claims.EncryptedSymmetricKey == "" {
		identity.Claims.EncryptedSymmetricKey = stored.EncryptedSymmetricKey
	}
	return identity, nil
}

func (p *LocalProvider) SetCustomClaims(ctx context.Context, uid string, claims CustomClaims) error {
	claims.SecretKey = ""
	return p.claims.SaveClaims(ctx, uid, claims)
}

func (p *LocalProvider) MintSessionToken(ctx context.Context, uid, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("mint session token: empty secret")
	}
	return p.issue(uid, p.sessionTTL, CustomClaims{SecretKey: secret})
}

func (p *LocalProvider) DeleteIdentity(ctx context.Context, uid string) error {
	return p.claims.DeleteClaims(ctx, uid)
}

// SignInAnonymously allocates a uid and returns an identity token for it.
func (p *LocalProvider) SignInAnonymously(ctx context.Context) (Identity, string, error) {
	uid := util.NewID("anon")
	claims := CustomClaims{Anonymous: true}
	token, err := p.issue(uid, p.identityTTL, claims)
	if err != nil {
		return Identity{}, "", err
	}
	return Identity{UID: uid, Claims: claims}, token, nil
}

func (p *LocalProvider) issue(uid string, ttl time.Duration, claims CustomClaims) (string, error) {
	return IssueToken(p.secret, Claims{
		Sub:          uid,
		JTI:          util.NewID(""),
		Exp:          p.now().Add(ttl).Unix(),
		CustomClaims: claims,
	})
}
