package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "dodocare"

// ErrInvalidToken is returned for tokens that are malformed, expired or not signed by us.
var ErrInvalidToken = errors.New("invalid session token")

// TokenClaims identifies a session. Subject carries the signed-in identity, if any,
// so the session can be restored after the process lost it. IssuedAtMicros
// repeats the issue time at microsecond precision: a sign-out within the same
// second as the token must still invalidate it.
type TokenClaims struct {
	jwt.RegisteredClaims
	IssuedAtMicros int64 `json:"iat_us,omitempty"`
}

// SessionID returns the session id.
func (c *TokenClaims) SessionID() string {
	return c.ID
}

// IdentityID returns the identity the session was signed into, or "".
func (c *TokenClaims) IdentityID() string {
	return c.Subject
}

// IssuedAtTime returns when the token was issued.
func (c *TokenClaims) IssuedAtTime() time.Time {
	if c.IssuedAtMicros != 0 {
		return time.UnixMicro(c.IssuedAtMicros)
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// Tokens issues and verifies session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer signing with secret.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for sessionID. identityID may be empty.
func (t *Tokens) Issue(sessionID, identityID string) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   identityID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		IssuedAtMicros: now.UnixMicro(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies a token and returns its claims.
func (t *Tokens) Parse(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
