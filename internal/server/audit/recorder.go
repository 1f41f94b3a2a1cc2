// Package audit appends authentication events to an audit trail. Recorders
// never read back, update or delete earlier entries.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/ids"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Recorder appends one entry per call. principalID is nil when the event
// cannot be tied to a principal.
type Recorder interface {
	Record(ctx context.Context, principalID *string, email string, client models.ClientInfo, action models.AuditAction) error
}

// stamper builds entries with strictly increasing timestamps, even when
// the clock stalls or steps back. Resolution matches Postgres timestamptz.
type stamper struct {
	clock clock.Clock

	mu   sync.Mutex
	last time.Time
}

const tick = time.Microsecond

func newStamper(c clock.Clock) *stamper {
	if c == nil {
		c = clock.Real{}
	}
	return &stamper{clock: c}
}

func (s *stamper) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC().Truncate(tick)
	if !now.After(s.last) {
		now = s.last.Add(tick)
	}
	s.last = now
	return now
}

func (s *stamper) entry(principalID *string, email string, client models.ClientInfo, action models.AuditAction) (*models.AuditLogEntry, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown audit action %q", common.ErrValidation, action)
	}
	client = client.Normalized()
	at := s.next()

	var uid *string
	if principalID != nil {
		id := *principalID
		uid = &id
	}
	return &models.AuditLogEntry{
		ID:        ids.NewULID(at),
		UserID:    uid,
		Email:     email,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Action:    action,
		CreatedAt: at,
	}, nil
}
