package kms

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// LocalOracle holds an RSA private key in process. It mirrors the Cloud KMS
// contract closely enough that the key provisioning code cannot tell them
// apart.
type LocalOracle struct {
	name string
	key  *rsa.PrivateKey
	pem  string
}

// GenerateLocalKey returns a PKCS#8 PEM encoded RSA private key.
func GenerateLocalKey(bits int) ([]byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal rsa key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// LoadLocalOracle reads a PEM private key from path.
func LoadLocalOracle(name, path string) (*LocalOracle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read local kms key: %w", err)
	}
	return NewLocalOracle(name, raw)
}

func NewLocalOracle(name string, privatePEM []byte) (*LocalOracle, error) {
	block, _ := pem.Decode(privatePEM)
	if block == nil {
		return nil, errors.New("local kms key: no PEM block")
	}
	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("local kms key: %w", err)
		}
		key = parsed
	default:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("local kms key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("local kms key: not an RSA key")
		}
		key = rsaKey
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("local kms key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return &LocalOracle{name: name, key: key, pem: string(publicPEM)}, nil
}

func (o *LocalOracle) KeyName() string { return o.name }

func (o *LocalOracle) PublicKey(ctx context.Context) (PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return PublicKey{}, err
	}
	return PublicKey{Name: o.name, PEM: o.pem, CRC32C: CRC32C([]byte(o.pem))}, nil
}

func (o *LocalOracle) AsymmetricDecrypt(ctx context.Context, ciphertext []byte, ciphertextCRC32C int64) (DecryptResult, error) {
	if err := ctx.Err(); err != nil {
		return DecryptResult{}, err
	}
	if CRC32C(ciphertext) != ciphertextCRC32C {
		return DecryptResult{VerifiedCiphertext: false}, nil
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, o.key, ciphertext, nil)
	if err != nil {
		return DecryptResult{}, fmt.Errorf("asymmetric decrypt: %w", err)
	}
	return DecryptResult{
		Plaintext:          plaintext,
		PlaintextCRC32C:    CRC32C(plaintext),
		VerifiedCiphertext: true,
	}, nil
}
