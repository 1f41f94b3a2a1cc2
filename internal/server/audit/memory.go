package audit

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// MemoryRecorder keeps entries in process memory.
type MemoryRecorder struct {
	stamper *stamper

	mu      sync.RWMutex
	entries []models.AuditLogEntry
}

var _ Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder(c clock.Clock) *MemoryRecorder {
	return &MemoryRecorder{stamper: newStamper(c)}
}

func (m *MemoryRecorder) Record(ctx context.Context, principalID *string, email string, client models.ClientInfo, action models.AuditAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := m.stamper.entry(principalID, email, client, action)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries = append(m.entries, *e)
	m.mu.Unlock()
	return nil
}

// Entries returns a snapshot in append order.
func (m *MemoryRecorder) Entries() []models.AuditLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AuditLogEntry(nil), m.entries...)
}

// Actions lists the recorded actions in append order.
func (m *MemoryRecorder) Actions() []models.AuditAction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AuditAction, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}
