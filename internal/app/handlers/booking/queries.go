package booking

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"rentpool/internal/app/dto"
	"rentpool/internal/app/handlers/support"
	"rentpool/internal/app/queries"
	"rentpool/internal/app/uow"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
)

const (
	getBookingKey       = "booking.get"
	listUnitBookingsKey = "booking.list_by_unit"
)

type GetBookingQuery struct {
	BookingID string `validate:"required"`
}

func (q GetBookingQuery) Key() string { return getBookingKey }

type GetBookingHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.Booking, error) {
	id := strings.TrimSpace(q.BookingID)
	if id == "" {
		return dto.Booking{}, ErrBookingIDRequired
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Booking{}, err
	}
	defer cleanup()

	b, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(id))
	if err != nil {
		return dto.Booking{}, err
	}
	return dto.MapBooking(b), nil
}

// ListUnitBookingsQuery lists a unit's bookings, newest range first. Status
// filters by lifecycle status; "active" keeps pending and confirmed.
type ListUnitBookingsQuery struct {
	UnitID string `validate:"required"`
	Status string `validate:"omitempty,oneof=active pending confirmed completed cancelled"`
}

func (q ListUnitBookingsQuery) Key() string { return listUnitBookingsKey }

type ListUnitBookingsHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

func (h *ListUnitBookingsHandler) Handle(ctx context.Context, q ListUnitBookingsQuery) (dto.BookingCollection, error) {
	unitID := domainfleet.UnitID(strings.TrimSpace(q.UnitID))
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	defer cleanup()

	if _, err := unit.Fleet().Unit(execCtx, unitID); err != nil {
		return dto.BookingCollection{}, err
	}
	items, err := unit.Bookings().ListByUnit(execCtx, unitID)
	if err != nil {
		return dto.BookingCollection{}, err
	}

	filter := strings.ToLower(strings.TrimSpace(q.Status))
	kept := items[:0]
	for _, b := range items {
		switch {
		case filter == "":
		case filter == "active" && b.IsActive():
		case string(b.Status) == filter:
		default:
			continue
		}
		kept = append(kept, b)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Range.Start.After(kept[j].Range.Start)
	})

	if h.Logger != nil {
		h.Logger.Debug("unit bookings listed", "unit_id", unitID, "count", len(kept), "status", filter)
	}
	return dto.MapBookings(kept), nil
}

var _ queries.Handler[GetBookingQuery, dto.Booking] = (*GetBookingHandler)(nil)
var _ queries.Handler[ListUnitBookingsQuery, dto.BookingCollection] = (*ListUnitBookingsHandler)(nil)
