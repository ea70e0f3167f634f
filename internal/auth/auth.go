// Package auth issues and verifies the HS256 bearer tokens that identify
// passengers, drivers and administrators.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleUser   = "user"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carries the user's roles; the subject is the user ID.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(c.Roles, r) {
			return true
		}
	}
	return false
}

type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret, issuer string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Tokens{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for userID with the given roles.
func (t *Tokens) Issue(userID uuid.UUID, roles ...string) (string, error) {
	const op = "auth.Tokens.Issue"

	if len(roles) == 0 {
		roles = []string{RoleUser}
	}

	now := t.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    t.issuer,
			Subject:   userID.String(),
		},
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return s, nil
}

// Verify parses and checks a token. Only HS256 tokens from the configured
// issuer with a UUID subject are accepted.
func (t *Tokens) Verify(token string) (*Claims, error) {
	const op = "auth.Tokens.Verify"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w: %v", op, ErrInvalidToken, err)
	}

	if !parsed.Valid {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidToken)
	}

	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%s:%w: subject is not a user id", op, ErrInvalidToken)
	}

	return &claims, nil
}
