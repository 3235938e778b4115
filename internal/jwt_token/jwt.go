package jwttoken

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "uptime/pkg/domain-errors"
)

// ErrVerifyOnly is returned when minting with a service that only holds a public key.
var ErrVerifyOnly = errors.New("jwt service holds no signing key")

// Claims are the access token claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService validates bearer tokens for the record API. It verifies RS256
// against a PEM public key, or HS256 against a shared secret in development.
type JWTService struct {
	method     jwt.SigningMethod
	verifyKey  any
	signingKey any
}

// NewHMACService signs and verifies HS256 tokens with secret.
func NewHMACService(secret string) *JWTService {
	return &JWTService{
		method:     jwt.SigningMethodHS256,
		verifyKey:  []byte(secret),
		signingKey: []byte(secret),
	}
}

// NewRSAService verifies RS256 tokens. Escaped newlines in publicKeyPEM are
// accepted so the key can live in a single environment variable.
func NewRSAService(publicKeyPEM string) (*JWTService, error) {
	pem := strings.ReplaceAll(publicKeyPEM, `\n`, "\n")
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parse JWT public key: %w", err)
	}
	return &JWTService{method: jwt.SigningMethodRS256, verifyKey: pub}, nil
}

// NewRSASigner signs and verifies RS256 tokens with key.
func NewRSASigner(key *rsa.PrivateKey) *JWTService {
	return &JWTService{method: jwt.SigningMethodRS256, verifyKey: &key.PublicKey, signingKey: key}
}

// FromConfig prefers the public key and falls back to the shared secret.
func FromConfig(publicKeyPEM, signingKey string) (*JWTService, error) {
	if publicKeyPEM != "" {
		return NewRSAService(publicKeyPEM)
	}
	if signingKey == "" {
		return nil, errors.New("either JWT_PUBLIC_KEY or JWT_SIGNING_KEY is required")
	}
	return NewHMACService(signingKey), nil
}

func (s *JWTService) GenerateAccessToken(subject string, expiresIn time.Duration) (string, error) {
	if s.signingKey == nil {
		return "", ErrVerifyOnly
	}
	now := time.Now()
	token := jwt.NewWithClaims(s.method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.verifyKey, nil
	}, jwt.WithValidMethods([]string{s.method.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return claims, nil
}
