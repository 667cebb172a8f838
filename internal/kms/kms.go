// Package kms talks to the asymmetric key oracle that protects per-user
// symmetric keys. Implementations exist for Google Cloud KMS and for a local
// RSA key used in development and tests.
package kms

import (
	"context"
	"errors"
	"hash/crc32"
)

// ErrUnavailable marks transport failures talking to the oracle.
var ErrUnavailable = errors.New("kms unavailable")

// PublicKey is the oracle's current wrapping key.
type PublicKey struct {
	Name   string
	PEM    string
	CRC32C int64
}

// DecryptResult is returned by AsymmetricDecrypt. VerifiedCiphertext reports
// whether the oracle received the ciphertext checksum it was sent.
type DecryptResult struct {
	Plaintext          []byte
	PlaintextCRC32C    int64
	VerifiedCiphertext bool
}

type Oracle interface {
	// KeyName identifies the key version used for wrapping and unwrapping.
	KeyName() string
	PublicKey(ctx context.Context) (PublicKey, error)
	AsymmetricDecrypt(ctx context.Context, ciphertext []byte, ciphertextCRC32C int64) (DecryptResult, error)
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the Castagnoli checksum used by the oracle for integrity
// checks.
func CRC32C(data []byte) int64 {
	return int64(crc32.Checksum(data, castagnoli))
}
