package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/auth"
	"rememberme/api/internal/docstore"
	"rememberme/api/internal/keys"
	"rememberme/api/internal/rounds"
)

// ImageStore holds profile images.
type ImageStore interface {
	Put(ctx context.Context, uid string, data []byte) (string, error)
	Remove(ctx context.Context, uid string) error
}

// anonymousProvider is implemented by identity providers that can mint
// identities on their own.
type anonymousProvider interface {
	SignInAnonymously(ctx context.Context) (auth.Identity, string, error)
}

// Session is an authenticated request with its key recovered.
type Session struct {
	Identity auth.Identity
	Caller   rounds.Caller
	// Token is set when the key had to be unwrapped through the KMS and a
	// new session token was minted.
	Token  string
	secret string
}

type Provisioned struct {
	rounds.Result
	UID          string `json:"uid"`
	Token        string `json:"token,omitempty"`
	SessionToken string `json:"sessionToken"`
}

type Service struct {
	store    docstore.Store
	rounds   *rounds.Service
	keys     *keys.Provisioner
	identity auth.Provider
	images   ImageStore
}

// New wires the service. images may be nil, which disables profile images.
func New(store docstore.Store, provisioner *keys.Provisioner, identity auth.Provider, images ImageStore) *Service {
	return &Service{
		store:    store,
		rounds:   rounds.NewService(store),
		keys:     provisioner,
		identity: identity,
		images:   images,
	}
}

func (s *Service) Rounds() *rounds.Service { return s.rounds }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, apperr.Unauthenticated()
	}
	identity, err := s.identity.Verify(ctx, token)
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return auth.Identity{}, apperr.Wrap(apperr.KindUnauthenticated, apperr.Unauthenticated().Details, err)
	}
	if err != nil {
		return auth.Identity{}, apperr.Unavailable(err)
	}
	return identity, nil
}

// Session authenticates token and recovers the caller's key.
func (s *Service) Session(ctx context.Context, token string) (Session, error) {
	identity, err := s.Authenticate(ctx, token)
	if err != nil {
		return Session{}, err
	}
	return s.Resolve(ctx, identity)
}

// Resolve recovers the key of an authenticated identity. It may call the
// KMS, so requests are validated before it runs.
func (s *Service) Resolve(ctx context.Context, identity auth.Identity) (Session, error) {
	resolved, err := s.keys.Resolve(ctx, identity.Claims.SecretKey, identity.Claims.EncryptedSymmetricKey)
	if err != nil {
		return Session{}, err
	}
	session := Session{
		Identity: identity,
		Caller:   rounds.Caller{UID: identity.UID, Key: resolved.Key},
		secret:   resolved.Secret,
	}
	if resolved.Fresh {
		minted, err := s.identity.MintSessionToken(ctx, identity.UID, resolved.Secret)
		if err != nil {
			log.Warn("mint session token failed", "uid", identity.UID, "err", err)
		} else {
			session.Token = minted
		}
	}
	return session, nil
}

// SessionToken returns a session token for an authenticated caller, minting
// one even when the request already carried a session secret.
func (s *Service) SessionToken(ctx context.Context, token string) (string, error) {
	session, err := s.Session(ctx, token)
	if err != nil {
		return "", err
	}
	if session.Token != "" {
		return session.Token, nil
	}
	minted, err := s.identity.MintSessionToken(ctx, session.Caller.UID, session.secret)
	if err != nil {
		return "", apperr.Unavailable(err)
	}
	return minted, nil
}

// Provision issues a key for identity and seeds its round tree. If the
// claims cannot be stored the tree is removed again so provisioning can be
// retried.
func (s *Service) Provision(ctx context.Context, identity auth.Identity) (Provisioned, error) {
	if identity.Claims.EncryptedSymmetricKey != "" {
		return Provisioned{}, apperr.NoChange("User is already provisioned")
	}
	issued, err := s.keys.Issue(ctx)
	if err != nil {
		return Provisioned{}, err
	}
	res, err := s.rounds.CreateUser(ctx, identity.UID, issued.Key)
	if err != nil {
		return Provisioned{}, err
	}
	if err := s.identity.SetCustomClaims(ctx, identity.UID, auth.CustomClaims{EncryptedSymmetricKey: issued.Wrapped}); err != nil {
		if rollbackErr := s.rounds.DeleteUser(ctx, identity.UID); rollbackErr != nil {
			log.Error("provision rollback failed", "uid", identity.UID, "err", rollbackErr)
		}
		return Provisioned{}, apperr.Unavailable(fmt.Errorf("set claims: %w", err))
	}
	sessionToken, err := s.identity.MintSessionToken(ctx, identity.UID, issued.Secret)
	if err != nil {
		return Provisioned{}, apperr.Unavailable(err)
	}
	return Provisioned{Result: res, UID: identity.UID, SessionToken: sessionToken}, nil
}

// SignInAnonymously creates and provisions a new anonymous identity.
func (s *Service) SignInAnonymously(ctx context.Context) (Provisioned, error) {
	provider, ok := s.identity.(anonymousProvider)
	if !ok {
		return Provisioned{}, apperr.PermissionDenied("Anonymous sign-in is disabled")
	}
	identity, token, err := provider.SignInAnonymously(ctx)
	if err != nil {
		return Provisioned{}, apperr.Internal(err)
	}
	provisioned, err := s.Provision(ctx, identity)
	if err != nil {
		return Provisioned{}, err
	}
	provisioned.Token = token
	return provisioned, nil
}

// DeleteUser removes the caller's profile image, round tree and identity.
func (s *Service) DeleteUser(ctx context.Context, session Session) error {
	uid := session.Caller.UID
	if s.images != nil {
		if err := s.images.Remove(ctx, uid); err != nil {
			log.Warn("profile image removal failed", "uid", uid, "err", err)
		}
	}
	if err := s.rounds.DeleteUser(ctx, uid); err != nil {
		return err
	}
	if err := s.identity.DeleteIdentity(ctx, uid); err != nil {
		return apperr.Unavailable(err)
	}
	return nil
}

func (s *Service) SetProfileImage(ctx context.Context, session Session, data []byte) (rounds.Result, error) {
	if s.images == nil {
		return rounds.Result{}, apperr.Unavailable(errors.New("profile images are not configured"))
	}
	url, err := s.images.Put(ctx, session.Caller.UID, data)
	if err != nil {
		return rounds.Result{}, err
	}
	return s.rounds.SetPhotoURL(ctx, session.Caller, url)
}

func (s *Service) DeleteProfileImage(ctx context.Context, session Session) (rounds.Result, error) {
	if s.images == nil {
		return rounds.Result{}, apperr.Unavailable(errors.New("profile images are not configured"))
	}
	if err := s.images.Remove(ctx, session.Caller.UID); err != nil {
		return rounds.Result{}, err
	}
	return s.rounds.SetPhotoURL(ctx, session.Caller, "")
}
