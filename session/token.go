package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned when the token is not a JWT.
var ErrOpaqueToken = errors.New("token is not a JWT")

// Claims are the access-token claims the client can read without the
// signing key. They are informational only and never trusted for
// authorization.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// ParseClaims decodes the claims of a JWT access token without verifying
// its signature.
func ParseClaims(token string) (*Claims, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpaqueToken, err)
	}
	return &c, nil
}

// TokenExpiry returns the exp claim of the current token. ok is false when
// there is no token, it is not a JWT, or it carries no exp claim.
func (s *Store) TokenExpiry() (exp time.Time, ok bool) {
	tok, has := s.Token()
	if !has {
		return time.Time{}, false
	}
	c, err := ParseClaims(tok)
	if err != nil || c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// TokenExpired reports whether the current token carries an exp claim that
// is in the past. Tokens without a readable expiry are never reported
// expired; the service remains the authority.
func (s *Store) TokenExpired() bool {
	exp, ok := s.TokenExpiry()
	return ok && !s.clock.Now().Before(exp)
}

// TokenTTL returns how long the current token remains valid, or zero when
// the expiry is unknown or already past.
func (s *Store) TokenTTL() time.Duration {
	exp, ok := s.TokenExpiry()
	if !ok {
		return 0
	}
	return max(exp.Sub(s.clock.Now()), 0)
}
