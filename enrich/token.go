// Package enrich cross-references chart entries with a music catalog.
package enrich

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenLifetime = 12 * time.Hour
	tokenReuse    = 11 * time.Hour
)

// ErrNoCredentials is returned when the catalog signing credentials are incomplete.
var ErrNoCredentials = errors.New("catalog credentials not configured")

type signedToken struct {
	value      string
	reuseUntil time.Time
}

// TokenSource issues ES256 developer tokens and reuses each one for most of
// its lifetime. Concurrent refreshes may each sign a token; the last one wins.
type TokenSource struct {
	teamID string
	keyID  string
	key    *ecdsa.PrivateKey
	now    func() time.Time

	cached atomic.Pointer[signedToken]
}

// NewTokenSource parses a PEM encoded EC private key (PKCS#8 or SEC 1).
func NewTokenSource(teamID, keyID string, pemKey []byte) (*TokenSource, error) {
	if teamID == "" || keyID == "" || len(pemKey) == 0 {
		return nil, ErrNoCredentials
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("parse catalog signing key: %w", err)
	}
	return &TokenSource{teamID: teamID, keyID: keyID, key: key, now: time.Now}, nil
}

// Token returns a valid developer token, signing a new one when needed.
func (s *TokenSource) Token() (string, error) {
	now := s.now()
	if cached := s.cached.Load(); cached != nil && now.Before(cached.reuseUntil) {
		return cached.value, nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    s.teamID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	})
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign catalog token: %w", err)
	}
	s.cached.Store(&signedToken{value: signed, reuseUntil: now.Add(tokenReuse)})
	return signed, nil
}
