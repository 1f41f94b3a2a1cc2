// Package auditlogs stores authentication audit entries. The table is
// append-only: the repository exposes no update or delete.
package auditlogs

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, e *models.AuditLogEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditLogEntry, error)
	ListRecent(ctx context.Context, limit int) ([]models.AuditLogEntry, error)
}
