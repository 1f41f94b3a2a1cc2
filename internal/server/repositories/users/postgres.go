package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const emailConstraint = "users_email_key"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	query := `
		INSERT INTO users (email, full_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, p.Email, p.FullName, p.PasswordHash).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, emailConstraint) {
			return nil, fmt.Errorf("%w: email already registered", common.ErrConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := `
		SELECT id, email, full_name, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	return r.findOne(ctx, query, email)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Principal, error) {
	query := `
		SELECT id, email, full_name, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	return r.findOne(ctx, query, id)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg string) (*models.Principal, error) {
	p := &models.Principal{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&p.ID, &p.Email, &p.FullName, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Principal, error) {
	query := `
		SELECT u.id, u.email, u.full_name, u.created_at, r.name
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		ORDER BY u.created_at, u.id, r.name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Principal
	for rows.Next() {
		var (
			p    models.Principal
			role sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Email, &p.FullName, &p.CreatedAt, &role); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != p.ID {
			out = append(out, p)
		}
		if role.Valid {
			last := &out[len(out)-1]
			last.Roles = append(last.Roles, role.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) RolesOf(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return roles, nil
}

func (r *PostgresRepository) EnsureRole(ctx context.Context, name string) error {
	query := `
		INSERT INTO roles (name)
		VALUES ($1)
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// AssignRole links userID to an existing role; assigning twice is a no-op.
// It returns common.ErrNotFound when the role does not exist.
func (r *PostgresRepository) AssignRole(ctx context.Context, userID, role string) error {
	query := `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2
		ON CONFLICT DO NOTHING
		RETURNING role_id
	`
	var roleID int64
	err := r.db.QueryRowContext(ctx, query, userID, role).Scan(&roleID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		// either already assigned or unknown role
		return r.roleMustExist(ctx, role)
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func (r *PostgresRepository) roleMustExist(ctx context.Context, role string) error {
	query := `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, role).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return fmt.Errorf("role %q: %w", role, common.ErrNotFound)
	}
	return nil
}
