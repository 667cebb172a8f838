package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims are the claims this service attaches to an identity.
type CustomClaims struct {
	EncryptedSymmetricKey string `json:"encryptedSymmetricKey,omitempty"`
	SecretKey             string `json:"secretKey,omitempty"`
	Anonymous             bool   `json:"anonymous,omitempty"`
}

type Claims struct {
	Sub string
	JTI string
	Exp int64
	CustomClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type jwtClaims struct {
	CustomClaims
	jwt.RegisteredClaims
}

func IssueToken(secret []byte, claims Claims) (string, error) {
	if claims.Sub == "" || claims.JTI == "" || claims.Exp == 0 {
		return "", fmt.Errorf("issue token: %w", ErrInvalidToken)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		CustomClaims: claims.CustomClaims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Sub,
			ID:        claims.JTI,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Unix(claims.Exp, 0)),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	var parsed jwtClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Claims{}, ErrExpiredToken
	}
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if parsed.Subject == "" || parsed.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		Sub:          parsed.Subject,
		JTI:          parsed.ID,
		Exp:          parsed.ExpiresAt.Unix(),
		CustomClaims: parsed.CustomClaims,
	}, nil
}
