// ABOUTME: JWT token verification reserved for the future signed-token auth mode.
// ABOUTME: Uses HS256 signing with a configurable secret of at least 32 bytes.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = errors.New("jwt secret must be at least 32 bytes")
)

// TokenVerifier defines the interface for token verification. The gateway
// does not issue tokens today; the verifier exists so a deployment can move
// from header credentials to signed tokens without a protocol change.
type TokenVerifier interface {
	Verify(tokenString string) (email string, err error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs whose "sub"
// claim carries the subscriber email.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a JWT verifier. The secret must be at least 32
// bytes; a short secret is a fatal configuration error.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the email from the "sub" claim.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Generate creates a new JWT token for the given email with expiration.
func (v *JWTVerifier) Generate(email string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": email,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
