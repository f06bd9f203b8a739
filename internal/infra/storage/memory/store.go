package memory

import (
	"sync"
	"time"

	appoutbox "rentpool/internal/app/outbox"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
)

// Store is the process-local backing store. Units of work stage their writes
// and apply them atomically at commit after version and exclusion checks, so
// concurrent writers observe the same conflicts a database would report.
type Store struct {
	mu       sync.RWMutex
	units    map[domainfleet.UnitID]*domainfleet.Unit
	groups   map[domainfleet.GroupID]*domainfleet.Group
	bookings map[domainbooking.BookingID]*domainbooking.Booking
	outbox   []*outboxEntry
}

func NewStore() *Store {
	return &Store{
		units:    make(map[domainfleet.UnitID]*domainfleet.Unit),
		groups:   make(map[domainfleet.GroupID]*domainfleet.Group),
		bookings: make(map[domainbooking.BookingID]*domainbooking.Booking),
	}
}

type outboxState string

const (
	stateNew     outboxState = "NEW"
	stateClaimed outboxState = "CLAIMED"
	stateSent    outboxState = "SENT"
	stateFailed  outboxState = "FAILED"
)

type outboxEntry struct {
	record      appoutbox.EventRecord
	state       outboxState
	attempts    int
	nextAttempt time.Time
	claimedBy   string
	lastError   string
}

// Bookings returns a snapshot of every stored booking.
func (s *Store) Bookings() []*domainbooking.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domainbooking.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b.Clone())
	}
	return out
}
