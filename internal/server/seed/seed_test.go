package seed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newProvider(t *testing.T) *identity.MemoryProvider {
	t.Helper()
	p, err := identity.NewMemoryProvider(bcrypt.MinCost, clock.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	return p
}

func staticPassword(pw string) func() ([]byte, error) {
	return func() ([]byte, error) { return []byte(pw), nil }
}

func TestRun_CreatesAdmin(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	res, err := Run(ctx, p, Admin{Email: " Admin@Example.com ", FullName: "System Administrator", Password: staticPassword("Admin@123")}, logging.Nop{})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.ElementsMatch(t, []string{common.RoleAdmin, common.RoleUser}, res.RolesAdded)

	admin, err := p.FindByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, res.PrincipalID, admin.ID)
	assert.Equal(t, "System Administrator", admin.FullName)
	assert.True(t, p.VerifyPassword(admin, "Admin@123"))

	roles, err := p.RolesOf(ctx, admin.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{common.RoleAdmin, common.RoleUser}, roles)
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	admin := Admin{Email: "admin@example.com", Password: staticPassword("Admin@123")}

	first, err := Run(ctx, p, admin, logging.Nop{})
	require.NoError(t, err)

	admin.Password = func() ([]byte, error) {
		t.Fatal("password must not be read for an existing admin")
		return nil, nil
	}
	second, err := Run(ctx, p, admin, logging.Nop{})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Empty(t, second.RolesAdded)
	assert.Equal(t, first.PrincipalID, second.PrincipalID)

	all, err := p.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRun_AddsMissingRolesToExistingAdmin(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	require.NoError(t, p.EnsureRole(ctx, common.RoleUser))
	existing, err := p.Create(ctx, "admin@example.com", "old-password", "Admin")
	require.NoError(t, err)
	require.NoError(t, p.AssignRole(ctx, existing.ID, common.RoleUser))

	res, err := Run(ctx, p, Admin{Email: "admin@example.com"}, logging.Nop{})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, []string{common.RoleAdmin}, res.RolesAdded)

	roles, err := p.RolesOf(ctx, existing.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{common.RoleAdmin, common.RoleUser}, roles)
	assert.True(t, p.VerifyPassword(existing, "old-password"), "existing password is kept")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		admin   Admin
		wantErr error
	}{
		{name: "empty email", admin: Admin{Email: "  ", Password: staticPassword("x")}, wantErr: common.ErrValidation},
		{name: "no password source", admin: Admin{Email: "admin@example.com"}, wantErr: common.ErrValidation},
		{name: "empty password", admin: Admin{Email: "admin@example.com", Password: staticPassword("")}, wantErr: common.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), newProvider(t), tt.admin, logging.Nop{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRun_PasswordReadError(t *testing.T) {
	boom := errors.New("not a terminal")
	_, err := Run(context.Background(), newProvider(t), Admin{
		Email:    "admin@example.com",
		Password: func() ([]byte, error) { return nil, boom },
	}, logging.Nop{})
	assert.ErrorIs(t, err, boom)
}

type failingRoles struct {
	identity.Provider
}

func (failingRoles) EnsureRole(context.Context, string) error {
	return common.ErrTransientStore
}

func TestRun_EnsureRoleFails(t *testing.T) {
	_, err := Run(context.Background(), failingRoles{newProvider(t)}, Admin{Email: "admin@example.com"}, logging.Nop{})
	assert.ErrorIs(t, err, common.ErrTransientStore)
}
