// Package identity maps bearer tokens to the stable owner id that every
// bookmark and feed subscription is scoped to.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "markd"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// HMAC issues and verifies HS256 tokens whose subject is the owner id.
type HMAC struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewHMAC creates a token authority. ttl <= 0 issues tokens without expiry.
func NewHMAC(secret string, ttl time.Duration) (*HMAC, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes, got %d", len(secret))
	}
	return &HMAC{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for owner.
func (h *HMAC) Issue(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", errors.New("owner is required")
	}

	now := h.now()
	claims := jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  owner,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if h.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(h.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer and expiry and returns the owner id.
func (h *HMAC) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return h.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(h.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// OwnerFromToken reads the owner id out of a token without verifying it.
// Clients use it to learn who they are; the server still verifies every
// request.
func OwnerFromToken(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}
