// Package seed creates the built-in roles and the administrator principal.
package seed

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/identity"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Roles are created on every run; the admin principal holds all of them.
var Roles = []string{common.RoleAdmin, common.RoleUser}

type Admin struct {
	Email    string
	FullName string
	// Password is called only when the principal has to be created.
	Password func() ([]byte, error)
}

type Result struct {
	PrincipalID string
	Created     bool
	RolesAdded  []string
}

// Run is idempotent: a second run with the same admin changes nothing.
func Run(ctx context.Context, p identity.Provider, admin Admin, l logging.Logger) (*Result, error) {
	l = l.With("module", "seed")

	for _, role := range Roles {
		if err := p.EnsureRole(ctx, role); err != nil {
			return nil, fmt.Errorf("ensure role %s: %w", role, err)
		}
	}

	email := identity.NormalizeEmail(admin.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: admin email is empty", common.ErrValidation)
	}

	res := &Result{}
	existing, err := p.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, common.ErrNotFound):
		existing, err = create(ctx, p, email, admin)
		if err != nil {
			return nil, err
		}
		res.Created = true
	case err != nil:
		return nil, err
	}
	res.PrincipalID = existing.ID

	current, err := p.RolesOf(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	for _, role := range Roles {
		if slices.Contains(current, role) {
			continue
		}
		if err := p.AssignRole(ctx, existing.ID, role); err != nil {
			return nil, fmt.Errorf("assign role %s: %w", role, err)
		}
		res.RolesAdded = append(res.RolesAdded, role)
	}

	if res.Created {
		l.Info(ctx, "Admin user created", "email", email, "roles", Roles)
	} else {
		l.Info(ctx, "Admin user already exists", "email", email, "roles_added", res.RolesAdded)
	}
	return res, nil
}

func create(ctx context.Context, p identity.Provider, email string, admin Admin) (*models.Principal, error) {
	if admin.Password == nil {
		return nil, fmt.Errorf("%w: admin password is required", common.ErrValidation)
	}
	pw, err := admin.Password()
	if err != nil {
		return nil, fmt.Errorf("read admin password: %w", err)
	}
	defer common.WipeByteArray(pw)
	if len(pw) == 0 {
		return nil, fmt.Errorf("%w: admin password is empty", common.ErrValidation)
	}
	return p.Create(ctx, email, string(pw), admin.FullName)
}
