package memory

import (
	"context"
	"errors"
	"time"

	appoutbox "rentpool/internal/app/outbox"
	infraoutbox "rentpool/internal/infra/outbox"
)

var ErrOutboxRecordNotFound = errors.New("memory: outbox record not found")

type outboxWriter struct {
	u *Unit
}

// Add stages a record; it becomes claimable only when the unit of work commits.
func (w outboxWriter) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if err := w.u.writable(); err != nil {
		return err
	}
	w.u.records = append(w.u.records, record)
	return nil
}

// Claim hands out the oldest due record.
func (s *Store) Claim(ctx context.Context, workerID string) (*infraoutbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, e := range s.outbox {
		if e.state != stateNew && e.state != stateFailed {
			continue
		}
		if e.nextAttempt.After(now) {
			continue
		}
		e.state = stateClaimed
		e.claimedBy = workerID
		return &infraoutbox.Record{EventRecord: e.record, Attempts: e.attempts}, nil
	}
	return nil, nil
}

func (s *Store) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.findOutbox(id)
	if e == nil {
		return ErrOutboxRecordNotFound
	}
	e.state = stateSent
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.findOutbox(id)
	if e == nil {
		return ErrOutboxRecordNotFound
	}
	e.state = stateFailed
	e.attempts++
	e.nextAttempt = next
	e.lastError = errMsg
	return nil
}

// OutboxRecords returns every committed record in commit order.
func (s *Store) OutboxRecords() []appoutbox.EventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]appoutbox.EventRecord, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, e.record)
	}
	return out
}

// PendingOutbox counts records not yet delivered.
func (s *Store) PendingOutbox() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.outbox {
		if e.state != stateSent {
			n++
		}
	}
	return n
}

func (s *Store) findOutbox(id string) *outboxEntry {
	for _, e := range s.outbox {
		if e.record.ID == id {
			return e
		}
	}
	return nil
}

var _ infraoutbox.Store = (*Store)(nil)
var _ appoutbox.Outbox = outboxWriter{}
