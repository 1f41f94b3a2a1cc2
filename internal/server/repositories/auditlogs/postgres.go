package auditlogs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const defaultListLimit = 100

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_logs (id, user_id, email, ip_address, user_agent, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var userID sql.NullString
	if e.UserID != nil {
		userID = sql.NullString{String: *e.UserID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		e.ID, userID, e.Email, e.IPAddress, e.UserAgent, string(e.Action), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByUser returns the newest entries of userID first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditLogEntry, error) {
	query := `
		SELECT id, user_id, email, ip_address, user_agent, action, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	return r.list(ctx, query, userID, normalizeLimit(limit))
}

func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	query := `
		SELECT id, user_id, email, ip_address, user_agent, action, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	return r.list(ctx, query, normalizeLimit(limit))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.AuditLogEntry
	for rows.Next() {
		var (
			e      models.AuditLogEntry
			userID sql.NullString
			action string
		)
		if err := rows.Scan(&e.ID, &userID, &e.Email, &e.IPAddress, &e.UserAgent, &action, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if userID.Valid {
			id := userID.String
			e.UserID = &id
		}
		e.Action = models.AuditAction(action)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
