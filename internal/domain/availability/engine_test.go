package availability

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentpool/internal/domain/booking"
	"rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

type stubFleet struct {
	groups map[fleet.GroupID]*fleet.Group
	units  map[fleet.UnitID]*fleet.Unit
}

func (s *stubFleet) Unit(_ context.Context, id fleet.UnitID) (*fleet.Unit, error) {
	if u, ok := s.units[id]; ok {
		return u, nil
	}
	return nil, fleet.ErrUnitNotFound
}

func (s *stubFleet) Group(_ context.Context, id fleet.GroupID) (*fleet.Group, error) {
	if g, ok := s.groups[id]; ok {
		return g, nil
	}
	return nil, fleet.ErrGroupNotFound
}

func (s *stubFleet) Members(_ context.Context, id fleet.GroupID) ([]*fleet.Unit, error) {
	var out []*fleet.Unit
	for _, u := range s.units {
		if u.GroupID == id {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubFleet) Groups(context.Context) ([]*fleet.Group, error) { return nil, nil }

func (s *stubFleet) SaveUnit(context.Context, *fleet.Unit) error { return nil }

func (s *stubFleet) SaveGroup(context.Context, *fleet.Group) error { return nil }

func (s *stubFleet) DeleteUnit(context.Context, fleet.UnitID) error { return nil }

func (s *stubFleet) DeleteGroup(context.Context, fleet.GroupID) error { return nil }

type stubBookings struct {
	items []*booking.Booking
	calls int
}

func (s *stubBookings) ActiveOverlapping(_ context.Context, units []fleet.UnitID, r daterange.DateRange) ([]*booking.Booking, error) {
	s.calls++
	var out []*booking.Booking
	for _, b := range s.items {
		if slices.Contains(units, b.UnitID) && b.IsActive() && b.Range.Overlaps(r) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubBookings) ByID(context.Context, booking.BookingID) (*booking.Booking, error) {
	return nil, booking.ErrBookingNotFound
}

func (s *stubBookings) Insert(context.Context, *booking.Booking) error { return nil }

func (s *stubBookings) Save(context.Context, *booking.Booking) error { return nil }

func (s *stubBookings) ListByUnit(context.Context, fleet.UnitID) ([]*booking.Booking, error) {
	return nil, nil
}
func (s *stubBookings) UsageCounts(context.Context, []fleet.UnitID) (map[fleet.UnitID]int, error) {
	return nil, nil
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func span(start, end string) daterange.DateRange {
	return daterange.MustNew(day(start), day(end))
}

func fixture(t *testing.T, qty int) (*Engine, *stubBookings, []*fleet.Unit) {
	t.Helper()
	n := 0
	g, units, err := fleet.NewGroup(fleet.CreateGroupParams{
		ID:          "G",
		Name:        "Scooter",
		VehicleType: "scooter",
		Quantity:    qty,
		Template:    fleet.UnitTemplate{Available: true},
		NewUnitID: func() fleet.UnitID {
			n++
			return fleet.UnitID(fmt.Sprintf("u%d", n))
		},
		Now: day("2024-05-01"),
	})
	require.NoError(t, err)
	fl := &stubFleet{groups: map[fleet.GroupID]*fleet.Group{g.ID: g}, units: map[fleet.UnitID]*fleet.Unit{}}
	for _, u := range units {
		fl.units[u.ID] = u
	}
	bk := &stubBookings{}
	return New(fl, bk), bk, units
}

func active(unit fleet.UnitID, r daterange.DateRange, status booking.Status) *booking.Booking {
	return &booking.Booking{ID: booking.BookingID("b-" + string(unit) + r.String()), UnitID: unit, Range: r, Status: status}
}

func TestFreeUnitsInGroupExcludesBookedUnits(t *testing.T) {
	eng, bk, units := fixture(t, 3)
	ctx := context.Background()
	r := span("2024-06-01", "2024-06-05")
	bk.items = append(bk.items, active(units[0].ID, r, booking.StatusPending))

	free, err := eng.FreeUnitsInGroup(ctx, "G", r)
	require.NoError(t, err)
	assert.Equal(t, []fleet.UnitID{units[1].ID, units[2].ID}, fleet.UnitIDs(free))

	again, err := eng.FreeUnitsInGroup(ctx, "G", r)
	require.NoError(t, err)
	assert.Equal(t, fleet.UnitIDs(free), fleet.UnitIDs(again))
}

func TestInactiveBookingsNeverBlock(t *testing.T) {
	eng, bk, units := fixture(t, 2)
	r := span("2024-06-01", "2024-06-05")
	bk.items = append(bk.items,
		active(units[0].ID, r, booking.StatusCancelled),
		active(units[1].ID, r, booking.StatusCompleted),
	)

	free, err := eng.FreeUnitsInGroup(context.Background(), "G", r)
	require.NoError(t, err)
	assert.Len(t, free, 2)
}

func TestAdjacentRangeIsFree(t *testing.T) {
	eng, bk, units := fixture(t, 1)
	bk.items = append(bk.items, active(units[0].ID, span("2024-06-01", "2024-06-05"), booking.StatusConfirmed))

	ok, err := eng.IsUnitFree(context.Background(), units[0].ID, span("2024-06-05", "2024-06-10"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eng.IsUnitFree(context.Background(), units[0].ID, span("2024-06-04", "2024-06-10"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisabledUnitIsNeverFree(t *testing.T) {
	eng, _, units := fixture(t, 2)
	units[0].Available = false
	r := span("2024-06-01", "2024-06-05")

	ok, err := eng.IsUnitFree(context.Background(), units[0].ID, r)
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := eng.PartitionGroup(context.Background(), "G", r)
	require.NoError(t, err)
	assert.Equal(t, []fleet.UnitID{units[1].ID}, p.FreeIDs())
	assert.Equal(t, []fleet.UnitID{units[0].ID}, p.BusyIDs())
}

func TestPartitionConservation(t *testing.T) {
	eng, bk, units := fixture(t, 5)
	bk.items = append(bk.items,
		active(units[1].ID, span("2024-06-01", "2024-06-03"), booking.StatusPending),
		active(units[3].ID, span("2024-06-04", "2024-06-08"), booking.StatusConfirmed),
	)
	ranges := []daterange.DateRange{
		span("2024-05-01", "2024-05-02"),
		span("2024-06-02", "2024-06-05"),
		span("2024-06-01", "2024-06-30"),
	}
	for _, r := range ranges {
		p, err := eng.PartitionGroup(context.Background(), "G", r)
		require.NoError(t, err)

		all := append(p.FreeIDs(), p.BusyIDs()...)
		assert.ElementsMatch(t, fleet.UnitIDs(units), all, r.String())
		for _, id := range p.FreeIDs() {
			assert.NotContains(t, p.BusyIDs(), id)
		}
	}
}

func TestEngineErrors(t *testing.T) {
	eng, _, _ := fixture(t, 1)
	ctx := context.Background()

	_, err := eng.FreeUnitsInGroup(ctx, "missing", span("2024-06-01", "2024-06-02"))
	assert.ErrorIs(t, err, fleet.ErrNotFound)

	_, err = eng.IsUnitFree(ctx, "missing", span("2024-06-01", "2024-06-02"))
	assert.ErrorIs(t, err, fleet.ErrUnitNotFound)

	_, err = eng.FreeUnitsInGroup(ctx, "G", daterange.DateRange{Start: day("2024-06-02"), End: day("2024-06-02")})
	assert.ErrorIs(t, err, daterange.ErrInvalidRange)
}

func TestEmptyGroupYieldsEmptySet(t *testing.T) {
	eng, bk, _ := fixture(t, 1)
	fl := eng.Units.(*stubFleet)
	fl.groups["empty"] = &fleet.Group{ID: "empty"}

	free, err := eng.FreeUnitsInGroup(context.Background(), "empty", span("2024-06-01", "2024-06-02"))
	require.NoError(t, err)
	assert.Empty(t, free)
	assert.Zero(t, bk.calls)
}
