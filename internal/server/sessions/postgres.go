package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/ids"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// PostgresStore keeps tokens in the refresh_tokens table. Mutations of a
// principal's chain run in one transaction holding
// pg_advisory_xact_lock(hashtextextended(principal_id, 0)); token rows are
// read with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	opts        Options
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB, m repomanager.RepositoryManager, opts Options) *PostgresStore {
	return &PostgresStore{db: db, repomanager: m, opts: opts.withDefaults()}
}

func (s *PostgresStore) Issue(ctx context.Context, principalID, token string, ttl time.Duration) error {
	if err := checkIssueArgs(principalID, token); err != nil {
		return err
	}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)
		if err := repo.LockPrincipal(ctx, principalID); err != nil {
			return err
		}
		return s.replace(ctx, repo, principalID, token, ttl)
	})
	return storeError(err)
}

func (s *PostgresStore) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrTokenNotFound
	}

	var (
		principalID string
		outcome     error
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)
		t, err := repo.FindByToken(ctx, token, true)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				outcome = ErrTokenNotFound
				return nil
			}
			return err
		}
		outcome, err = s.check(ctx, repo, t)
		principalID = t.UserID
		// commit even on a failed verdict so lazy expiry sticks
		return err
	})
	if err != nil {
		return "", storeError(err)
	}
	if outcome != nil {
		return "", outcome
	}
	return principalID, nil
}

func (s *PostgresStore) Rotate(ctx context.Context, principalID, presented, token string, ttl time.Duration) error {
	if err := checkIssueArgs(principalID, token); err != nil {
		return err
	}

	var outcome error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)
		if err := repo.LockPrincipal(ctx, principalID); err != nil {
			return err
		}

		t, err := repo.FindByToken(ctx, presented, true)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				outcome = ErrTokenNotFound
				return nil
			}
			return err
		}
		if t.UserID != principalID {
			outcome = ErrTokenNotFound
			return nil
		}

		outcome, err = s.check(ctx, repo, t)
		if err != nil || outcome != nil {
			return err
		}
		return s.replace(ctx, repo, principalID, token, ttl)
	})
	if err != nil {
		return storeError(err)
	}
	return outcome
}

func (s *PostgresStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := s.repomanager.RefreshTokens(s.db).MarkRevoked(ctx, token)
	return storeError(err)
}

func (s *PostgresStore) RevokeAll(ctx context.Context, principalID string) error {
	var n int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)
		if err := repo.LockPrincipal(ctx, principalID); err != nil {
			return err
		}
		var err error
		n, err = repo.RevokeAllForUser(ctx, principalID)
		return err
	})
	if err != nil {
		return storeError(err)
	}
	s.opts.Logger.Debug(ctx, "revoked refresh tokens", "principal_id", principalID, "count", n)
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, token string) (*models.RefreshToken, error) {
	t, err := s.repomanager.RefreshTokens(s.db).FindByToken(ctx, token, false)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, storeError(err)
	}
	return t, nil
}

func (s *PostgresStore) ListByPrincipal(ctx context.Context, principalID string) ([]models.RefreshToken, error) {
	list, err := s.repomanager.RefreshTokens(s.db).ListByUser(ctx, principalID)
	if err != nil {
		return nil, storeError(err)
	}
	return list, nil
}

// check applies verdict and persists the lazy expiry. The returned error is
// a store failure; outcome is the token verdict.
func (s *PostgresStore) check(ctx context.Context, repo refreshtokens.Repository, t *models.RefreshToken) (outcome error, err error) {
	outcome, expire := verdict(t, s.opts.Clock.Now())
	if expire {
		if _, err := repo.MarkRevoked(ctx, t.Token); err != nil {
			return nil, err
		}
		s.opts.Logger.Debug(ctx, "refresh token expired", "principal_id", t.UserID, "token_id", t.ID)
	}
	return outcome, nil
}

func (s *PostgresStore) replace(ctx context.Context, repo refreshtokens.Repository, principalID, token string, ttl time.Duration) error {
	if _, err := repo.RevokeAllForUser(ctx, principalID); err != nil {
		return err
	}
	now := s.opts.Clock.Now()
	return repo.Create(ctx, &models.RefreshToken{
		ID:        ids.NewUUID(),
		UserID:    principalID,
		Token:     token,
		ExpiresAt: now.Add(s.opts.ttl(ttl)),
		CreatedAt: now,
	})
}

// storeError leaves cancellation and domain errors alone and tags the rest
// as transient.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, common.ErrValidation):
		return err
	default:
		return fmt.Errorf("session store: %w", common.Transient(err))
	}
}
