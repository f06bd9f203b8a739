package availability

import (
	"context"

	"rentpool/internal/domain/booking"
	"rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

// Engine answers which units are free for a range. It only reads; whether the
// answer is authoritative depends on the repositories it is built from.
type Engine struct {
	Units    fleet.Repository
	Bookings booking.Repository
}

func New(units fleet.Repository, bookings booking.Repository) *Engine {
	return &Engine{Units: units, Bookings: bookings}
}

// Partition splits a group's live members into free and busy sets. Both are
// ordered by position. Busy includes units disabled by an operator.
type Partition struct {
	Free []*fleet.Unit
	Busy []*fleet.Unit
}

func (p Partition) FreeIDs() []fleet.UnitID {
	return fleet.UnitIDs(p.Free)
}

func (p Partition) BusyIDs() []fleet.UnitID {
	return fleet.UnitIDs(p.Busy)
}

// IsUnitFree reports whether the unit is enabled and has no active booking overlapping r.
func (e *Engine) IsUnitFree(ctx context.Context, unitID fleet.UnitID, r daterange.DateRange) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	unit, err := e.Units.Unit(ctx, unitID)
	if err != nil {
		return false, err
	}
	return e.UnitFree(ctx, unit, r)
}

// UnitFree is IsUnitFree for an already loaded unit.
func (e *Engine) UnitFree(ctx context.Context, unit *fleet.Unit, r daterange.DateRange) (bool, error) {
	if !unit.Available {
		return false, nil
	}
	conflicts, err := e.activeOverlapping(ctx, []fleet.UnitID{unit.ID}, r)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

// Conflicts returns the active bookings that overlap r on the unit.
func (e *Engine) Conflicts(ctx context.Context, unitID fleet.UnitID, r daterange.DateRange) ([]*booking.Booking, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.Units.Unit(ctx, unitID); err != nil {
		return nil, err
	}
	return e.activeOverlapping(ctx, []fleet.UnitID{unitID}, r)
}

// FreeUnitsInGroup returns the free members of a group ordered by position.
// An empty group yields an empty result.
func (e *Engine) FreeUnitsInGroup(ctx context.Context, groupID fleet.GroupID, r daterange.DateRange) ([]*fleet.Unit, error) {
	p, err := e.PartitionGroup(ctx, groupID, r)
	if err != nil {
		return nil, err
	}
	return p.Free, nil
}

func (e *Engine) PartitionGroup(ctx context.Context, groupID fleet.GroupID, r daterange.DateRange) (Partition, error) {
	if err := r.Validate(); err != nil {
		return Partition{}, err
	}
	if _, err := e.Units.Group(ctx, groupID); err != nil {
		return Partition{}, err
	}
	members, err := e.Units.Members(ctx, groupID)
	if err != nil {
		return Partition{}, err
	}
	if len(members) == 0 {
		return Partition{}, nil
	}
	fleet.SortByPosition(members)

	active, err := e.activeOverlapping(ctx, fleet.UnitIDs(members), r)
	if err != nil {
		return Partition{}, err
	}
	occupied := make(map[fleet.UnitID]struct{}, len(active))
	for _, b := range active {
		occupied[b.UnitID] = struct{}{}
	}

	var p Partition
	for _, m := range members {
		if _, busy := occupied[m.ID]; busy || !m.Available {
			p.Busy = append(p.Busy, m)
			continue
		}
		p.Free = append(p.Free, m)
	}
	return p, nil
}

// activeOverlapping re-applies the overlap predicate so stores may over-fetch.
func (e *Engine) activeOverlapping(ctx context.Context, units []fleet.UnitID, r daterange.DateRange) ([]*booking.Booking, error) {
	found, err := e.Bookings.ActiveOverlapping(ctx, units, r)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, b := range found {
		if b.IsActive() && b.Range.Overlaps(r) {
			out = append(out, b)
		}
	}
	return out, nil
}
