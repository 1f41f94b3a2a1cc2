// Package auth issues and verifies the short-lived HS256 access tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HMAC key accepted, in bytes.
const MinSecretLength = 32

// DefaultAccessTokenTTL applies when no lifetime is configured.
const DefaultAccessTokenTTL = 60 * time.Minute

// ErrTokenExpired is returned by Parse for well-formed tokens past their
// expiry. Clients refresh on it.
var ErrTokenExpired = fmt.Errorf("%w: token expired", common.ErrUnauthenticated)

// Claims is the access token payload. Subject carries the principal id.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token grants the named role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type IssuerConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Issuer signs and parses access tokens. It holds no mutable state and is
// safe for concurrent use.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    clock.Clock
}

// NewIssuer validates cfg and returns an Issuer. Missing signing material is
// reported as common.ErrConfiguration.
func NewIssuer(cfg IssuerConfig, c clock.Clock) (*Issuer, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.Real{}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Issuer{
		secret:   secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		clock:    c,
	}, nil
}

func validateConfig(cfg IssuerConfig) error {
	switch {
	case len(cfg.Secret) == 0:
		return fmt.Errorf("%w: jwt secret is not set", common.ErrConfiguration)
	case len(cfg.Secret) < MinSecretLength:
		return fmt.Errorf("%w: jwt secret must be at least %d bytes", common.ErrConfiguration, MinSecretLength)
	case strings.TrimSpace(cfg.Issuer) == "":
		return fmt.Errorf("%w: jwt issuer is not set", common.ErrConfiguration)
	case strings.TrimSpace(cfg.Audience) == "":
		return fmt.Errorf("%w: jwt audience is not set", common.ErrConfiguration)
	}
	return nil
}

// TTL is the lifetime stamped on issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue returns a signed access token for the principal.
func (i *Issuer) Issue(principalID, email string, roles []string) (string, error) {
	if strings.TrimSpace(principalID) == "" {
		return "", fmt.Errorf("%w: principal id is required", common.ErrValidation)
	}

	now := i.clock.Now()
	claims := Claims{
		Email: email,
		Roles: append([]string(nil), roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   principalID,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, audience and expiry. Every failure is
// reported as common.ErrUnauthenticated.
func (i *Issuer) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", common.ErrUnauthenticated)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthenticated, err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: invalid token", common.ErrUnauthenticated)
	}
	return claims, nil
}
