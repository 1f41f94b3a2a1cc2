package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// RepositoryRecorder writes entries to the audit_logs table.
type RepositoryRecorder struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	stamper     *stamper
}

var _ Recorder = (*RepositoryRecorder)(nil)

func NewRepositoryRecorder(db *sql.DB, m repomanager.RepositoryManager, c clock.Clock) *RepositoryRecorder {
	return &RepositoryRecorder{db: db, repomanager: m, stamper: newStamper(c)}
}

func (r *RepositoryRecorder) Record(ctx context.Context, principalID *string, email string, client models.ClientInfo, action models.AuditAction) error {
	e, err := r.stamper.entry(principalID, email, client, action)
	if err != nil {
		return err
	}
	if err := r.repomanager.AuditLogs(r.db).Append(ctx, e); err != nil {
		return fmt.Errorf("audit append: %w", common.Transient(err))
	}
	return nil
}
