package availability

import (
	"context"
	"strings"
	"time"

	"rentpool/internal/app/dto"
	"rentpool/internal/app/queries"
	"rentpool/internal/app/uow"
	domainavailability "rentpool/internal/domain/availability"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

const (
	freeUnitsKey        = "availability.free_units"
	unitAvailabilityKey = "availability.unit"
)

// FreeUnitsQuery lists the free members of a group. The answer is advisory:
// only the booking transaction is authoritative.
type FreeUnitsQuery struct {
	GroupID string `validate:"required"`
	Start   time.Time
	End     time.Time
}

func (q FreeUnitsQuery) Key() string { return freeUnitsKey }

type FreeUnitsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *FreeUnitsHandler) Handle(ctx context.Context, q FreeUnitsQuery) (dto.GroupAvailability, error) {
	r, err := daterange.New(q.Start, q.End)
	if err != nil {
		return dto.GroupAvailability{}, err
	}
	unit, ok := uow.FromContext(ctx)
	if !ok {
		if h.UoWFactory == nil {
			return dto.GroupAvailability{}, uow.ErrUnitOfWorkMissing
		}
		unit, err = h.UoWFactory.Begin(ctx, uow.TxOptions{ReadOnly: true})
		if err != nil {
			return dto.GroupAvailability{}, err
		}
		defer unit.Rollback(ctx)
	}

	groupID := domainfleet.GroupID(strings.TrimSpace(q.GroupID))
	engine := domainavailability.New(unit.Fleet(), unit.Bookings())
	p, err := engine.PartitionGroup(ctx, groupID, r)
	if err != nil {
		return dto.GroupAvailability{}, err
	}
	return dto.MapGroupAvailability(string(groupID), r, p), nil
}

type UnitAvailabilityQuery struct {
	UnitID string `validate:"required"`
	Start  time.Time
	End    time.Time
}

func (q UnitAvailabilityQuery) Key() string { return unitAvailabilityKey }

type UnitAvailabilityHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *UnitAvailabilityHandler) Handle(ctx context.Context, q UnitAvailabilityQuery) (dto.UnitAvailability, error) {
	r, err := daterange.New(q.Start, q.End)
	if err != nil {
		return dto.UnitAvailability{}, err
	}
	unit, ok := uow.FromContext(ctx)
	if !ok {
		if h.UoWFactory == nil {
			return dto.UnitAvailability{}, uow.ErrUnitOfWorkMissing
		}
		unit, err = h.UoWFactory.Begin(ctx, uow.TxOptions{ReadOnly: true})
		if err != nil {
			return dto.UnitAvailability{}, err
		}
		defer unit.Rollback(ctx)
	}

	unitID := domainfleet.UnitID(strings.TrimSpace(q.UnitID))
	u, err := unit.Fleet().Unit(ctx, unitID)
	if err != nil {
		return dto.UnitAvailability{}, err
	}
	engine := domainavailability.New(unit.Fleet(), unit.Bookings())
	conflicts, err := engine.Conflicts(ctx, unitID, r)
	if err != nil {
		return dto.UnitAvailability{}, err
	}
	return dto.UnitAvailability{
		UnitID:    string(unitID),
		StartDate: r.Start.Format(time.DateOnly),
		EndDate:   r.End.Format(time.DateOnly),
		Free:      u.Available && len(conflicts) == 0,
		Enabled:   u.Available,
		Conflicts: dto.MapBlockingBookings(conflicts),
	}, nil
}

var _ queries.Handler[FreeUnitsQuery, dto.GroupAvailability] = (*FreeUnitsHandler)(nil)
var _ queries.Handler[UnitAvailabilityQuery, dto.UnitAvailability] = (*UnitAvailabilityHandler)(nil)
