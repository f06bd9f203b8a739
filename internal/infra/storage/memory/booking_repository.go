package memory

import (
	"context"
	"slices"
	"sort"

	"rentpool/internal/app/uow"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

type bookingRepository struct {
	u *Unit
}

func (r bookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	if b, ok := r.u.inserts[id]; ok {
		return b.Clone(), nil
	}
	if st, ok := r.u.saves[id]; ok {
		return st.value.Clone(), nil
	}
	s := r.u.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	return b.Clone(), nil
}

// Insert stages a new booking. Overlaps with other active bookings are
// detected at commit so that racing units of work see a write conflict.
func (r bookingRepository) Insert(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, ok := r.u.inserts[b.ID]; ok {
		return uow.ErrWriteConflict
	}
	b.Version = 1
	r.u.inserts[b.ID] = b.Clone()
	return nil
}

func (r bookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if staged, ok := r.u.inserts[b.ID]; ok {
		if staged.Version != b.Version {
			return uow.ErrWriteConflict
		}
		r.u.inserts[b.ID] = b.Clone()
		return nil
	}
	if st, ok := r.u.saves[b.ID]; ok {
		if st.value.Version != b.Version {
			return uow.ErrWriteConflict
		}
		st.value = b.Clone()
		return nil
	}
	base := b.Version
	b.Version = base + 1
	r.u.saves[b.ID] = &stagedBooking{value: b.Clone(), base: base}
	return nil
}

func (r bookingRepository) ActiveOverlapping(ctx context.Context, units []domainfleet.UnitID, rng daterange.DateRange) ([]*domainbooking.Booking, error) {
	out := r.view(func(b *domainbooking.Booking) bool {
		return b.IsActive() && slices.Contains(units, b.UnitID) && b.Range.Overlaps(rng)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Start.Before(out[j].Range.Start) })
	return out, nil
}

func (r bookingRepository) ListByUnit(ctx context.Context, unitID domainfleet.UnitID) ([]*domainbooking.Booking, error) {
	out := r.view(func(b *domainbooking.Booking) bool { return b.UnitID == unitID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r bookingRepository) UsageCounts(ctx context.Context, units []domainfleet.UnitID) (map[domainfleet.UnitID]int, error) {
	counts := make(map[domainfleet.UnitID]int)
	for _, b := range r.view(func(b *domainbooking.Booking) bool {
		return slices.Contains(units, b.UnitID) && slices.Contains(domainbooking.UsageStatuses, b.Status)
	}) {
		counts[b.UnitID]++
	}
	return counts, nil
}

// view returns clones of the bookings visible to this unit of work that match keep.
func (r bookingRepository) view(keep func(*domainbooking.Booking) bool) []*domainbooking.Booking {
	s := r.u.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domainbooking.Booking
	for _, b := range r.u.mergedBookings() {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	return out
}

var _ domainbooking.Repository = bookingRepository{}
