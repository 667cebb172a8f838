// Package keys provisions and recovers per-user symmetric keys.
//
// A new user gets a random AES key. Its hex form is wrapped with the KMS
// public key (RSA-OAEP, SHA-256) and the hex encoded result is stored on the
// identity as the encryptedSymmetricKey claim. Requests that carry only the
// wrapped key are unwrapped through the KMS once per process; the recovered
// secret is then handed back to the caller inside a session token.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/envelope"
	"rememberme/api/internal/kms"
	"rememberme/api/internal/metrics"
)

var errCorrupted = errors.New("kms response corrupted in transit")

// Issued is the result of provisioning a key for a new user.
type Issued struct {
	Key     *envelope.Key
	Secret  string
	Wrapped string
}

// Session is the key material resolved for one request. Fresh is set when the
// secret was recovered through the KMS and should be minted into a session
// token.
type Session struct {
	Key    *envelope.Key
	Secret string
	Fresh  bool
}

type Provisioner struct {
	oracle kms.Oracle
	group  singleflight.Group

	mu     sync.RWMutex
	public *rsa.PublicKey

	unwrapMu  sync.Mutex
	unwrapped map[[32]byte]string
}

func NewProvisioner(oracle kms.Oracle) *Provisioner {
	return &Provisioner{
		oracle:    oracle,
		unwrapped: make(map[[32]byte]string),
	}
}

// Issue generates a symmetric key and wraps it for storage as a claim.
func (p *Provisioner) Issue(ctx context.Context) (Issued, error) {
	secret, err := envelope.GenerateKey()
	if err != nil {
		return Issued{}, apperr.Internal(err)
	}
	key, err := envelope.ImportKey(secret)
	if err != nil {
		return Issued{}, apperr.Internal(err)
	}
	wrapped, err := p.Wrap(ctx, secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Key: key, Secret: secret, Wrapped: wrapped}, nil
}

// Wrap encrypts secret under the KMS public key and returns it hex encoded.
func (p *Provisioner) Wrap(ctx context.Context, secret string) (string, error) {
	pub, err := p.publicKey(ctx)
	if err != nil {
		return "", err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(secret), nil)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("wrap key: %w", err))
	}
	return hex.EncodeToString(wrapped), nil
}

// Unwrap recovers the secret behind a wrapped key. Results are cached for the
// lifetime of the process so transaction retries never repeat the KMS call.
func (p *Provisioner) Unwrap(ctx context.Context, wrapped string) (string, error) {
	cacheKey := blake2b.Sum256([]byte(wrapped))

	p.unwrapMu.Lock()
	secret, ok := p.unwrapped[cacheKey]
	p.unwrapMu.Unlock()
	if ok {
		metrics.KeyCacheHits.WithLabelValues("unwrap", "hit").Inc()
		return secret, nil
	}
	metrics.KeyCacheHits.WithLabelValues("unwrap", "miss").Inc()

	ciphertext, err := hex.DecodeString(wrapped)
	if err != nil || len(ciphertext) == 0 {
		return "", apperr.Invalid("wrapped key is not hex")
	}

	res, err := p.oracle.AsymmetricDecrypt(ctx, ciphertext, kms.CRC32C(ciphertext))
	if err != nil {
		metrics.KMSRequests.WithLabelValues("asymmetric_decrypt", "error").Inc()
		return "", apperr.Unavailable(err)
	}
	if !res.VerifiedCiphertext || kms.CRC32C(res.Plaintext) != res.PlaintextCRC32C {
		metrics.KMSRequests.WithLabelValues("asymmetric_decrypt", "corrupted").Inc()
		log.Error("asymmetric decrypt integrity check failed", "verified", res.VerifiedCiphertext)
		return "", apperr.Integrity(errCorrupted)
	}
	metrics.KMSRequests.WithLabelValues("asymmetric_decrypt", "ok").Inc()

	secret = string(res.Plaintext)
	if secret == "" {
		return "", apperr.Integrity(errors.New("kms returned empty plaintext"))
	}

	p.unwrapMu.Lock()
	p.unwrapped[cacheKey] = secret
	p.unwrapMu.Unlock()
	return secret, nil
}

// Resolve returns the request key. A session secret is imported directly;
// otherwise the wrapped key is unwrapped and the session is marked fresh.
func (p *Provisioner) Resolve(ctx context.Context, sessionSecret, wrapped string) (Session, error) {
	if sessionSecret != "" {
		key, err := envelope.ImportKey(sessionSecret)
		if err != nil {
			return Session{}, apperr.Invalid("session secret: %v", err)
		}
		return Session{Key: key, Secret: sessionSecret}, nil
	}
	if wrapped == "" {
		return Session{}, apperr.Invalid("token carries no key material")
	}
	secret, err := p.Unwrap(ctx, wrapped)
	if err != nil {
		return Session{}, err
	}
	key, err := envelope.ImportKey(secret)
	if err != nil {
		return Session{}, apperr.Integrity(fmt.Errorf("unwrapped key: %w", err))
	}
	return Session{Key: key, Secret: secret, Fresh: true}, nil
}

// Invalidate drops the cached public key.
func (p *Provisioner) Invalidate() {
	p.mu.Lock()
	p.public = nil
	p.mu.Unlock()
}

func (p *Provisioner) publicKey(ctx context.Context) (*rsa.PublicKey, error) {
	p.mu.RLock()
	cached := p.public
	p.mu.RUnlock()
	if cached != nil {
		metrics.KeyCacheHits.WithLabelValues("public_key", "hit").Inc()
		return cached, nil
	}
	metrics.KeyCacheHits.WithLabelValues("public_key", "miss").Inc()

	v, err, _ := p.group.Do("public-key", func() (any, error) {
		// The flight is shared, so it must not end with the first caller.
		ctx := context.WithoutCancel(ctx)
		pub, err := p.fetchPublicKey(ctx)
		if errors.Is(err, errCorrupted) {
			log.Warn("public key failed integrity check, refetching")
			p.Invalidate()
			pub, err = p.fetchPublicKey(ctx)
		}
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.public = pub
		p.mu.Unlock()
		return pub, nil
	})
	if err != nil {
		if errors.Is(err, errCorrupted) {
			log.Error("public key integrity check failed twice")
			return nil, apperr.Integrity(err)
		}
		if errors.Is(err, kms.ErrUnavailable) {
			return nil, apperr.Unavailable(err)
		}
		return nil, apperr.Internal(err)
	}
	return v.(*rsa.PublicKey), nil
}

func (p *Provisioner) fetchPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	res, err := p.oracle.PublicKey(ctx)
	if err != nil {
		metrics.KMSRequests.WithLabelValues("get_public_key", "error").Inc()
		return nil, err
	}
	if res.Name != p.oracle.KeyName() || kms.CRC32C([]byte(res.PEM)) != res.CRC32C {
		metrics.KMSRequests.WithLabelValues("get_public_key", "corrupted").Inc()
		return nil, errCorrupted
	}
	metrics.KMSRequests.WithLabelValues("get_public_key", "ok").Inc()
	return parsePublicKey(res.PEM)
}

func parsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("public key: no PEM block")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key: not RSA")
	}
	return pub, nil
}
