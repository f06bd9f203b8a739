// Package inbox deduplicates consumed broker messages by event id.
package inbox

import (
	"context"
	"sync"
	"time"
)

// Store records an event id for a consumer. Seen reports true when the id was
// already recorded, in which case the message must not be applied again.
// Forget releases an id so a message that failed to apply can be redelivered.
type Store interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Memory is a process-local Store. Entries older than TTL are forgotten.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (m *Memory) Seen(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if at, ok := m.seen[eventID]; ok && (m.ttl <= 0 || now.Sub(at) <= m.ttl) {
		return true, nil
	}
	m.seen[eventID] = now
	return false, nil
}

func (m *Memory) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

var _ Store = (*Memory)(nil)
