package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseProvider delegates identities to Firebase Authentication. Session
// tokens are custom tokens the client exchanges for an ID token.
type FirebaseProvider struct {
	client *firebaseauth.Client
}

func NewFirebaseProvider(ctx context.Context, credentialsFile string) (*FirebaseProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseProvider{client: client}, nil
}

func (p *FirebaseProvider) Verify(ctx context.Context, idToken string) (Identity, error) {
	token, err := p.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Identity{}, verifyError(err)
	}
	return Identity{UID: token.UID, Claims: claimsFromMap(token.Claims)}, nil
}

// verifyError keeps token-content failures apart from failures to reach
// Firebase, which callers treat as retryable.
func verifyError(err error) error {
	switch {
	case firebaseauth.IsIDTokenExpired(err):
		return ErrExpiredToken
	case firebaseauth.IsIDTokenInvalid(err):
		return ErrInvalidToken
	default:
		return fmt.Errorf("verify id token: %w", err)
	}
}

func (p *FirebaseProvider) SetCustomClaims(ctx context.Context, uid string, claims CustomClaims) error {
	if err := p.client.SetCustomUserClaims(ctx, uid, map[string]any{
		"encryptedSymmetricKey": claims.EncryptedSymmetricKey,
	}); err != nil {
		return fmt.Errorf("set custom claims: %w", err)
	}
	return nil
}

func (p *FirebaseProvider) MintSessionToken(ctx context.Context, uid, secret string) (string, error) {
	token, err := p.client.CustomTokenWithClaims(ctx, uid, map[string]any{"secretKey": secret})
	if err != nil {
		return "", fmt.Errorf("mint custom token: %w", err)
	}
	return token, nil
}

func (p *FirebaseProvider) DeleteIdentity(ctx context.Context, uid string) error {
	if err := p.client.DeleteUser(ctx, uid); err != nil && !firebaseauth.IsUserNotFound(err) {
		return fmt.Errorf("delete firebase user: %w", err)
	}
	return nil
}

func claimsFromMap(m map[string]any) CustomClaims {
	var c CustomClaims
	c.EncryptedSymmetricKey, _ = m["encryptedSymmetricKey"].(string)
	c.SecretKey, _ = m["secretKey"].(string)
	if firebaseClaims, ok := m["firebase"].(map[string]any); ok {
		c.Anonymous = firebaseClaims["sign_in_provider"] == "anonymous"
	}
	return c
}
