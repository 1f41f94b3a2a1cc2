// Package refreshtokens declares the repository contract for refresh-token
// rows and its PostgreSQL implementation.
package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is the row-level access used by the session store. Callers are
// expected to run mutating sequences inside one transaction.
type Repository interface {
	// LockPrincipal takes a transaction-scoped lock serializing all token
	// mutations of userID. It is a no-op outside a transaction.
	LockPrincipal(ctx context.Context, userID string) error

	Create(ctx context.Context, t *models.RefreshToken) error

	// FindByToken returns common.ErrNotFound when the token is absent.
	// With forUpdate the row stays locked until the transaction ends.
	FindByToken(ctx context.Context, token string, forUpdate bool) (*models.RefreshToken, error)

	// MarkRevoked flips one token to revoked and reports whether a row changed.
	MarkRevoked(ctx context.Context, token string) (bool, error)

	// RevokeAllForUser revokes every live token of userID and returns the count.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// ListByUser returns the whole chain of userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]models.RefreshToken, error)
}
