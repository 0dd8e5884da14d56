// ABOUTME: HS256 JWT issuing and verification for the reference backend's API
// ABOUTME: The token subject is the user id conversations are stored under

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
)

// TokenVerifier checks a bearer token and returns its user id.
type TokenVerifier interface {
	Verify(tokenString string) (userID string, err error)
}

// JWTVerifier verifies and issues HS256 tokens with a shared secret.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret, now: time.Now}
}

// Verify validates the token and returns its "sub" claim.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}

// Generate issues a token for userID that expires after expiresIn.
func (v *JWTVerifier) Generate(userID string, expiresIn time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
