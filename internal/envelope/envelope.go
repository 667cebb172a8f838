// Package envelope encrypts JSON values with a per-user AES-GCM key.
//
// A ciphertext is base64(iv || sealed) with a 16 byte IV. Strings are sealed
// as their raw UTF-8 bytes; every other value is sealed as its JSON encoding.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	KeySize = 32
	IVSize  = 16
)

var (
	// ErrDecrypt is returned when a ciphertext cannot be opened with the key.
	ErrDecrypt = errors.New("envelope: decrypt failed")
	// ErrAbsent is returned when there is no ciphertext to open.
	ErrAbsent = errors.New("envelope: no ciphertext")
)

// Key is an imported symmetric key. It is safe for concurrent use.
type Key struct {
	aead cipher.AEAD
	hex  string
}

// GenerateKey returns a fresh random key, hex encoded.
func GenerateKey() (string, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// ImportKey parses a hex encoded AES key.
func ImportKey(hexKey string) (*Key, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("import key: %w", err)
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("import key: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("import key: %w", err)
	}
	return &Key{aead: aead, hex: hexKey}, nil
}

// Hex returns the key in the form it was imported from.
func (k *Key) Hex() string { return k.hex }

// Encrypt seals v under k with a fresh IV.
func Encrypt(v any, k *Key) (string, error) {
	var plaintext []byte
	switch value := v.(type) {
	case string:
		plaintext = []byte(value)
	case []byte:
		plaintext = value
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encrypt: marshal: %w", err)
		}
		plaintext = encoded
	}

	iv := make([]byte, IVSize, IVSize+len(plaintext)+k.aead.Overhead())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("encrypt: iv: %w", err)
	}
	sealed := k.aead.Seal(iv, iv, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext and returns the plaintext bytes.
func Decrypt(ciphertext string, k *Key) ([]byte, error) {
	if ciphertext == "" {
		return nil, ErrAbsent
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < IVSize {
		return nil, ErrDecrypt
	}
	plaintext, err := k.aead.Open(nil, raw[:IVSize], raw[IVSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// DecryptString opens ciphertext holding a bare string.
func DecryptString(ciphertext string, k *Key) (string, error) {
	plaintext, err := Decrypt(ciphertext, k)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DecryptInto opens ciphertext and decodes its JSON plaintext into out.
func DecryptInto(ciphertext string, k *Key, out any) error {
	plaintext, err := Decrypt(ciphertext, k)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return nil
}
