// Package identity stores principals and verifies their passwords. The
// session core only talks to it through the Provider interface.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicate is returned by Create when the email is taken.
var ErrDuplicate = fmt.Errorf("%w: email already registered", common.ErrConflict)

// Provider is the credential store used by the auth flows.
//
// Lookups return common.ErrNotFound for unknown principals. FindByEmail and
// FindByID leave Roles empty; use RolesOf.
type Provider interface {
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	FindByID(ctx context.Context, id string) (*models.Principal, error)
	Create(ctx context.Context, email, password, fullName string) (*models.Principal, error)
	// VerifyPassword accepts a nil principal and then always returns false,
	// spending roughly the same time as a real comparison.
	VerifyPassword(p *models.Principal, password string) bool
	EnsureRole(ctx context.Context, role string) error
	AssignRole(ctx context.Context, principalID, role string) error
	RolesOf(ctx context.Context, principalID string) ([]string, error)
	ListAll(ctx context.Context) ([]models.Principal, error)
}

// NormalizeEmail lower-cases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// hasher wraps bcrypt with a configurable cost and a dummy hash for
// comparisons against unknown principals.
type hasher struct {
	cost  int
	dummy []byte
}

func newHasher(cost int) (*hasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d out of range", common.ErrConfiguration, cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("authkeeper-dummy-password"), cost)
	if err != nil {
		return nil, err
	}
	return &hasher{cost: cost, dummy: dummy}, nil
}

func (h *hasher) hash(password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password is empty", common.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password is too long", common.ErrValidation)
		}
		return nil, err
	}
	return hash, nil
}

func (h *hasher) verify(p *models.Principal, password string) bool {
	if p == nil || len(p.PasswordHash) == 0 {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(password)) == nil
}
