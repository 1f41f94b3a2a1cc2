package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/ids"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// MemoryProvider is an in-process Provider for tests and the memory backend.
type MemoryProvider struct {
	mu      sync.RWMutex
	byID    map[string]*models.Principal
	byEmail map[string]string
	roles   map[string]struct{}
	grants  map[string]map[string]struct{}
	order   []string
	hasher  *hasher
	clock   clock.Clock
}

func NewMemoryProvider(bcryptCost int, c clock.Clock) (*MemoryProvider, error) {
	h, err := newHasher(bcryptCost)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.Real{}
	}
	return &MemoryProvider{
		byID:    make(map[string]*models.Principal),
		byEmail: make(map[string]string),
		roles:   make(map[string]struct{}),
		grants:  make(map[string]map[string]struct{}),
		hasher:  h,
		clock:   c,
	}, nil
}

func (m *MemoryProvider) FindByEmail(_ context.Context, email string) (*models.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return m.copyOf(id, false), nil
}

func (m *MemoryProvider) FindByID(_ context.Context, id string) (*models.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.byID[id]; !ok {
		return nil, common.ErrNotFound
	}
	return m.copyOf(id, false), nil
}

func (m *MemoryProvider) Create(ctx context.Context, email, password, fullName string) (*models.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	// hash outside the lock, bcrypt is slow
	hash, err := m.hasher.hash(password)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[email]; taken {
		return nil, ErrDuplicate
	}
	p := &models.Principal{
		ID:           ids.NewUUID(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		CreatedAt:    m.clock.Now(),
	}
	m.byID[p.ID] = p
	m.byEmail[email] = p.ID
	m.order = append(m.order, p.ID)
	return m.copyOf(p.ID, false), nil
}

func (m *MemoryProvider) VerifyPassword(p *models.Principal, password string) bool {
	return m.hasher.verify(p, password)
}

func (m *MemoryProvider) EnsureRole(_ context.Context, role string) error {
	m.mu.Lock()
	m.roles[role] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryProvider) AssignRole(_ context.Context, principalID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[principalID]; !ok {
		return common.ErrNotFound
	}
	if _, ok := m.roles[role]; !ok {
		return fmt.Errorf("role %q: %w", role, common.ErrNotFound)
	}
	g := m.grants[principalID]
	if g == nil {
		g = make(map[string]struct{})
		m.grants[principalID] = g
	}
	g[role] = struct{}{}
	return nil
}

func (m *MemoryProvider) RolesOf(_ context.Context, principalID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rolesOf(principalID), nil
}

func (m *MemoryProvider) ListAll(_ context.Context) ([]models.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Principal, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.copyOf(id, true))
	}
	return out, nil
}

// caller holds m.mu
func (m *MemoryProvider) rolesOf(id string) []string {
	roles := make([]string, 0, len(m.grants[id]))
	for r := range m.grants[id] {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// caller holds m.mu
func (m *MemoryProvider) copyOf(id string, withRoles bool) *models.Principal {
	p := *m.byID[id]
	p.PasswordHash = append([]byte(nil), p.PasswordHash...)
	p.Roles = nil
	if withRoles {
		p.Roles = m.rolesOf(id)
	}
	return &p
}
