// Package users persists principals and their role assignments.
package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts p and fills in ID and CreatedAt. A taken email yields
	// an error matching common.ErrConflict.
	Create(ctx context.Context, p *models.Principal) (*models.Principal, error)
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	FindByID(ctx context.Context, id string) (*models.Principal, error)
	// List returns every principal with its roles, oldest first.
	List(ctx context.Context) ([]models.Principal, error)

	RolesOf(ctx context.Context, userID string) ([]string, error)
	EnsureRole(ctx context.Context, name string) error
	AssignRole(ctx context.Context, userID, role string) error
}
