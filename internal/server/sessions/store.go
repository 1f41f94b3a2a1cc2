// Package sessions owns the refresh-token lifecycle: issuance, rotation,
// revocation and lazy expiry.
//
// A principal has at most one non-revoked token at any time. Issue and
// Rotate revoke the previous token and insert the new one atomically, under
// a per-principal lock, so concurrent logins or refreshes for the same
// principal can never leave two live tokens behind. Tokens move from Active
// to Revoked and never back; rows are never deleted.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenRevoked  = errors.New("refresh token revoked")
	ErrTokenExpired  = errors.New("refresh token expired")
)

// TokenBytes is the amount of CSPRNG output behind every refresh token.
const TokenBytes = 64

// DefaultTTL applies when Issue or Rotate get a non-positive ttl.
const DefaultTTL = 7 * 24 * time.Hour

// Store persists refresh tokens. Implementations are safe for concurrent use.
type Store interface {
	// Issue revokes every live token of principalID and stores token as the
	// only live one, in a single atomic step.
	Issue(ctx context.Context, principalID, token string, ttl time.Duration) error

	// Validate returns the owner of an active token. Unknown, revoked and
	// expired tokens fail with ErrTokenNotFound, ErrTokenRevoked and
	// ErrTokenExpired; an expired token is marked revoked on the way out.
	Validate(ctx context.Context, token string) (string, error)

	// Rotate replaces presented with token, provided presented is still the
	// active token of principalID when the principal lock is held. Failures
	// use the same errors as Validate and leave the chain untouched.
	Rotate(ctx context.Context, principalID, presented, token string, ttl time.Duration) error

	// Revoke is a no-op for unknown or already revoked tokens.
	Revoke(ctx context.Context, token string) error

	// RevokeAll revokes every live token of principalID. Idempotent.
	RevokeAll(ctx context.Context, principalID string) error

	Lookup(ctx context.Context, token string) (*models.RefreshToken, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]models.RefreshToken, error)
}

// GenerateToken returns a fresh opaque refresh token: TokenBytes from
// crypto/rand in unpadded URL-safe base64.
func GenerateToken() (string, error) {
	tok, err := common.MakeRandURLString(TokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return tok, nil
}

// Options tune a Store. Zero values pick defaults.
type Options struct {
	DefaultTTL time.Duration
	Clock      clock.Clock
	Logger     logging.Logger
}

func (o Options) withDefaults() Options {
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = DefaultTTL
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Logger == nil {
		o.Logger = logging.Nop{}
	}
	return o
}

func (o Options) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return o.DefaultTTL
	}
	return ttl
}

func checkIssueArgs(principalID, token string) error {
	if strings.TrimSpace(principalID) == "" {
		return fmt.Errorf("%w: principal id is required", common.ErrValidation)
	}
	if token == "" {
		return fmt.Errorf("%w: token is required", common.ErrValidation)
	}
	return nil
}

// verdict decides whether t can be used at now. expire is true when the
// caller must flip t to revoked before reporting ErrTokenExpired.
func verdict(t *models.RefreshToken, now time.Time) (outcome error, expire bool) {
	switch {
	case t.Revoked:
		return ErrTokenRevoked, false
	case t.Expired(now):
		return ErrTokenExpired, true
	default:
		return nil, false
	}
}
