package auth

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// TokenIssuer signs and verifies HS256 bearer tokens carrying {id, role}.
// Admin roles get a shorter lifetime than customers.
type TokenIssuer struct {
	secret   []byte
	ttl      time.Duration
	adminTTL time.Duration
	now      func() time.Time
}

// NewTokenIssuer creates an issuer. ttl applies to customers, adminTTL to
// admin and super_admin.
func NewTokenIssuer(secret string, ttl, adminTTL time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is empty")
	}
	if ttl <= 0 || adminTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &TokenIssuer{
		secret:   []byte(secret),
		ttl:      ttl,
		adminTTL: adminTTL,
		now:      time.Now,
	}, nil
}

// TTL returns the token lifetime for role.
func (t *TokenIssuer) TTL(role Role) time.Duration {
	if role.IsAdmin() {
		return t.adminTTL
	}
	return t.ttl
}

// Issue signs a token for p and returns it with its expiry.
func (t *TokenIssuer) Issue(p Principal) (string, time.Time, error) {
	if p.ID <= 0 || !p.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("cannot issue token for principal %d/%q", p.ID, p.Role)
	}

	now := t.now().UTC()
	expiresAt := now.Add(t.TTL(p.Role))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   p.ID,
		"role": string(p.Role),
		"jti":  uuid.New().String(),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of tokenString and returns the
// principal it carries. Failures wrap ErrTokenExpired or ErrTokenInvalid.
func (t *TokenIssuer) Verify(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return Principal{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, fmt.Errorf("%w: invalid claims", ErrTokenInvalid)
	}

	rawID, ok := claims["id"].(float64)
	if !ok || rawID <= 0 || rawID != math.Trunc(rawID) {
		return Principal{}, fmt.Errorf("%w: invalid id claim", ErrTokenInvalid)
	}

	rawRole, ok := claims["role"].(string)
	if !ok {
		return Principal{}, fmt.Errorf("%w: invalid role claim", ErrTokenInvalid)
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return Principal{ID: int64(rawID), Role: role}, nil
}
