package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/ids"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// MemoryStore keeps the token chains in process memory.
type MemoryStore struct {
	opts  Options
	locks *keyedMutex

	mu          sync.RWMutex
	byToken     map[string]*models.RefreshToken
	byPrincipal map[string][]*models.RefreshToken
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:        opts.withDefaults(),
		locks:       newKeyedMutex(),
		byToken:     make(map[string]*models.RefreshToken),
		byPrincipal: make(map[string][]*models.RefreshToken),
	}
}

func (s *MemoryStore) Issue(ctx context.Context, principalID, token string, ttl time.Duration) error {
	if err := checkIssueArgs(principalID, token); err != nil {
		return err
	}
	unlock, err := s.locks.lock(ctx, principalID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// last point where cancellation may still abort the issue
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.replaceLocked(principalID, token, ttl)
}

func (s *MemoryStore) Validate(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byToken[token]
	if !ok {
		return "", ErrTokenNotFound
	}
	if outcome := s.checkLocked(ctx, t); outcome != nil {
		return "", outcome
	}
	return t.UserID, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, principalID, presented, token string, ttl time.Duration) error {
	if err := checkIssueArgs(principalID, token); err != nil {
		return err
	}
	unlock, err := s.locks.lock(ctx, principalID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t, ok := s.byToken[presented]
	if !ok || t.UserID != principalID {
		return ErrTokenNotFound
	}
	if outcome := s.checkLocked(ctx, t); outcome != nil {
		return outcome
	}
	return s.replaceLocked(principalID, token, ttl)
}

func (s *MemoryStore) Revoke(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.byToken[token]; ok {
		t.Revoked = true
	}
	return nil
}

func (s *MemoryStore) RevokeAll(ctx context.Context, principalID string) error {
	unlock, err := s.locks.lock(ctx, principalID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokeChainLocked(principalID)
	return nil
}

func (s *MemoryStore) Lookup(ctx context.Context, token string) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byToken[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

// ListByPrincipal returns the chain newest first.
func (s *MemoryStore) ListByPrincipal(ctx context.Context, principalID string) ([]models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.byPrincipal[principalID]
	out := make([]models.RefreshToken, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, *chain[i])
	}
	return out, nil
}

// caller holds s.mu for writing
func (s *MemoryStore) checkLocked(ctx context.Context, t *models.RefreshToken) error {
	outcome, expire := verdict(t, s.opts.Clock.Now())
	if expire {
		t.Revoked = true
		s.opts.Logger.Debug(ctx, "refresh token expired", "principal_id", t.UserID, "token_id", t.ID)
	}
	return outcome
}

// caller holds s.mu for writing and the principal lock
func (s *MemoryStore) replaceLocked(principalID, token string, ttl time.Duration) error {
	if _, taken := s.byToken[token]; taken {
		return fmt.Errorf("refresh token collision for principal %s", principalID)
	}
	s.revokeChainLocked(principalID)

	now := s.opts.Clock.Now()
	t := &models.RefreshToken{
		ID:        ids.NewUUID(),
		UserID:    principalID,
		Token:     token,
		ExpiresAt: now.Add(s.opts.ttl(ttl)),
		CreatedAt: now,
	}
	s.byToken[token] = t
	s.byPrincipal[principalID] = append(s.byPrincipal[principalID], t)
	return nil
}

func (s *MemoryStore) revokeChainLocked(principalID string) {
	for _, t := range s.byPrincipal[principalID] {
		t.Revoked = true
	}
}
