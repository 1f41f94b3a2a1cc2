package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// PostgresProvider keeps principals in the users/roles tables.
type PostgresProvider struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *hasher
}

// NewPostgresProvider uses bcrypt at the given cost (0 means bcrypt.DefaultCost).
func NewPostgresProvider(db *sql.DB, m repomanager.RepositoryManager, bcryptCost int) (*PostgresProvider, error) {
	h, err := newHasher(bcryptCost)
	if err != nil {
		return nil, err
	}
	return &PostgresProvider{db: db, repomanager: m, hasher: h}, nil
}

func (p *PostgresProvider) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	u, err := p.repomanager.Users(p.db).FindByEmail(ctx, NormalizeEmail(email))
	return u, storeError(err)
}

// FindByID reports ids that are not UUIDs as unknown; the column type would
// otherwise reject them with a store error.
func (p *PostgresProvider) FindByID(ctx context.Context, id string) (*models.Principal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrNotFound
	}
	u, err := p.repomanager.Users(p.db).FindByID(ctx, id)
	return u, storeError(err)
}

func (p *PostgresProvider) Create(ctx context.Context, email, password, fullName string) (*models.Principal, error) {
	hash, err := p.hasher.hash(password)
	if err != nil {
		return nil, err
	}
	u, err := p.repomanager.Users(p.db).Create(ctx, &models.Principal{
		Email:        NormalizeEmail(email),
		FullName:     fullName,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, ErrDuplicate
		}
		return nil, storeError(err)
	}
	return u, nil
}

func (p *PostgresProvider) VerifyPassword(u *models.Principal, password string) bool {
	return p.hasher.verify(u, password)
}

func (p *PostgresProvider) EnsureRole(ctx context.Context, role string) error {
	return storeError(p.repomanager.Users(p.db).EnsureRole(ctx, role))
}

func (p *PostgresProvider) AssignRole(ctx context.Context, principalID, role string) error {
	return storeError(p.repomanager.Users(p.db).AssignRole(ctx, principalID, role))
}

func (p *PostgresProvider) RolesOf(ctx context.Context, principalID string) ([]string, error) {
	roles, err := p.repomanager.Users(p.db).RolesOf(ctx, principalID)
	return roles, storeError(err)
}

func (p *PostgresProvider) ListAll(ctx context.Context) ([]models.Principal, error) {
	list, err := p.repomanager.Users(p.db).List(ctx)
	return list, storeError(err)
}

// storeError passes domain sentinels through and tags anything else as a
// transient store failure.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrConflict) {
		return err
	}
	return fmt.Errorf("identity store: %w", common.Transient(err))
}
