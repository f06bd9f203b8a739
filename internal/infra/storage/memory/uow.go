package memory

import (
	"context"
	"errors"
	"time"

	appoutbox "rentpool/internal/app/outbox"
	"rentpool/internal/app/uow"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
)

var (
	// ErrFactoryMisconfigured indicates a factory without a store.
	ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")
	ErrUnitClosed           = errors.New("memory: unit of work already finished")
)

// Factory starts units of work against a Store.
type Factory struct {
	Store *Store
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		store:    f.Store,
		readOnly: opts.ReadOnly,
		units:    make(map[domainfleet.UnitID]*stagedUnit),
		groups:   make(map[domainfleet.GroupID]*stagedGroup),
		inserts:  make(map[domainbooking.BookingID]*domainbooking.Booking),
		saves:    make(map[domainbooking.BookingID]*stagedBooking),
	}, nil
}

// staged values carry the version observed when the write was first staged.
// A nil value stages a delete.
type stagedUnit struct {
	value *domainfleet.Unit
	base  int64
}

type stagedGroup struct {
	value *domainfleet.Group
	base  int64
}

type stagedBooking struct {
	value *domainbooking.Booking
	base  int64
}

// Unit is a uow.UnitOfWork with read-your-writes semantics over a Store.
type Unit struct {
	store    *Store
	readOnly bool
	done     bool

	units   map[domainfleet.UnitID]*stagedUnit
	groups  map[domainfleet.GroupID]*stagedGroup
	inserts map[domainbooking.BookingID]*domainbooking.Booking
	saves   map[domainbooking.BookingID]*stagedBooking
	records []appoutbox.EventRecord
}

func (u *Unit) Fleet() domainfleet.Repository {
	return fleetRepository{u: u}
}

func (u *Unit) Bookings() domainbooking.Repository {
	return bookingRepository{u: u}
}

func (u *Unit) Outbox() appoutbox.Outbox {
	return outboxWriter{u: u}
}

func (u *Unit) writable() error {
	if u.done {
		return ErrUnitClosed
	}
	if u.readOnly {
		return uow.ErrReadOnly
	}
	return nil
}

func (u *Unit) empty() bool {
	return len(u.units) == 0 && len(u.groups) == 0 && len(u.inserts) == 0 && len(u.saves) == 0 && len(u.records) == 0
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return ErrUnitClosed
	}
	u.done = true
	if u.readOnly || u.empty() {
		return nil
	}

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := u.checkVersions(); err != nil {
		return err
	}
	if err := u.checkExclusion(); err != nil {
		return err
	}

	for id, st := range u.units {
		if st.value == nil {
			delete(s.units, id)
			continue
		}
		s.units[id] = st.value.Clone()
	}
	for id, st := range u.groups {
		if st.value == nil {
			delete(s.groups, id)
			continue
		}
		s.groups[id] = st.value.Clone()
	}
	for id, b := range u.inserts {
		s.bookings[id] = b.Clone()
	}
	for id, st := range u.saves {
		s.bookings[id] = st.value.Clone()
	}
	now := time.Now().UTC()
	for _, rec := range u.records {
		s.outbox = append(s.outbox, &outboxEntry{record: rec, state: stateNew, nextAttempt: now})
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.done = true
	return nil
}

// checkVersions must run with the store lock held.
func (u *Unit) checkVersions() error {
	s := u.store
	for id, st := range u.units {
		var current int64
		cur, ok := s.units[id]
		if ok {
			current = cur.Version
		}
		if !versionMatches(ok, current, st.base) {
			return uow.ErrWriteConflict
		}
	}
	for id, st := range u.groups {
		var current int64
		cur, ok := s.groups[id]
		if ok {
			current = cur.Version
		}
		if !versionMatches(ok, current, st.base) {
			return uow.ErrWriteConflict
		}
	}
	for id := range u.inserts {
		if _, exists := s.bookings[id]; exists {
			return uow.ErrWriteConflict
		}
	}
	for id, st := range u.saves {
		cur, ok := s.bookings[id]
		if !ok || cur.Version != st.base {
			return uow.ErrWriteConflict
		}
	}
	return nil
}

// versionMatches treats base 0 as "must not exist yet".
func versionMatches(exists bool, current, base int64) bool {
	if base == 0 {
		return !exists
	}
	return exists && current == base
}

// checkExclusion rejects commits that would leave two active bookings on one
// unit with overlapping ranges. Must run with the store lock held.
func (u *Unit) checkExclusion() error {
	var changed []*domainbooking.Booking
	for _, b := range u.inserts {
		changed = append(changed, b)
	}
	for _, st := range u.saves {
		changed = append(changed, st.value)
	}
	if len(changed) == 0 {
		return nil
	}
	final := u.mergedBookings()
	for _, c := range changed {
		if !c.IsActive() {
			continue
		}
		for _, o := range final {
			if o.ID == c.ID || o.UnitID != c.UnitID || !o.IsActive() {
				continue
			}
			if o.Range.Overlaps(c.Range) {
				return uow.ErrWriteConflict
			}
		}
	}
	return nil
}

// mergedBookings overlays staged booking writes on the stored ones. The caller
// holds the store lock.
func (u *Unit) mergedBookings() []*domainbooking.Booking {
	s := u.store
	out := make([]*domainbooking.Booking, 0, len(s.bookings)+len(u.inserts))
	for id, b := range s.bookings {
		if st, ok := u.saves[id]; ok {
			out = append(out, st.value)
			continue
		}
		out = append(out, b)
	}
	for _, b := range u.inserts {
		out = append(out, b)
	}
	return out
}

var _ uow.UoWFactory = Factory{}
var _ uow.UnitOfWork = (*Unit)(nil)
