package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
)

func TestBookingLifecycleTransitions(t *testing.T) {
	f := newFixture(t, 2, domainfleet.StrategySequential)
	ctx := context.Background()
	transitions := &TransitionHandler{UoWFactory: f.factory}

	res, err := f.handler.Handle(ctx, BookCommand{GroupID: "G", CustomerID: "alice", Start: june1, End: june5})
	require.NoError(t, err)
	id := res.Booking.ID

	confirmed, err := transitions.Confirm().Handle(ctx, ConfirmBookingCommand{BookingID: id})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusConfirmed), confirmed.Status)

	_, err = transitions.Confirm().Handle(ctx, ConfirmBookingCommand{BookingID: id})
	assert.ErrorIs(t, err, domainbooking.ErrInvalidState)

	completed, err := transitions.Complete().Handle(ctx, CompleteBookingCommand{BookingID: id})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusCompleted), completed.Status)

	_, err = transitions.Cancel().Handle(ctx, CancelBookingCommand{BookingID: id, Reason: "too late"})
	assert.ErrorIs(t, err, domainbooking.ErrInvalidState)

	var names []string
	for _, rec := range f.store.OutboxRecords() {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"booking.requested", "booking.confirmed", "booking.completed"}, names)
}

func TestCancelFreesUnitForRebooking(t *testing.T) {
	f := newFixture(t, 1, domainfleet.StrategySequential)
	ctx := context.Background()
	transitions := &TransitionHandler{UoWFactory: f.factory}
	cmd := BookCommand{GroupID: "G", CustomerID: "alice", Start: june1, End: june5}

	res, err := f.handler.Handle(ctx, cmd)
	require.NoError(t, err)
	_, err = f.handler.Handle(ctx, cmd)
	require.Error(t, err)

	_, err = transitions.Cancel().Handle(ctx, CancelBookingCommand{BookingID: res.Booking.ID, Reason: "plans changed"})
	require.NoError(t, err)

	again, err := f.handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.UnitID, again.Booking.UnitID)
}

func TestTransitionUnknownBooking(t *testing.T) {
	f := newFixture(t, 1, domainfleet.StrategySequential)
	transitions := &TransitionHandler{UoWFactory: f.factory}

	_, err := transitions.Confirm().Handle(context.Background(), ConfirmBookingCommand{BookingID: "nope"})
	assert.ErrorIs(t, err, domainbooking.ErrBookingNotFound)

	_, err = transitions.Confirm().Handle(context.Background(), ConfirmBookingCommand{BookingID: " "})
	assert.ErrorIs(t, err, ErrBookingIDRequired)
}

func TestListUnitBookingsFiltersAndSorts(t *testing.T) {
	f := newFixture(t, 1, domainfleet.StrategySequential)
	ctx := context.Background()
	transitions := &TransitionHandler{UoWFactory: f.factory}

	first, err := f.handler.Handle(ctx, BookCommand{UnitID: "1", CustomerID: "alice", Start: june1, End: june5})
	require.NoError(t, err)
	_, err = f.handler.Handle(ctx, BookCommand{UnitID: "1", CustomerID: "bob", Start: june5, End: june10})
	require.NoError(t, err)
	_, err = transitions.Cancel().Handle(ctx, CancelBookingCommand{BookingID: first.Booking.ID})
	require.NoError(t, err)

	list := &ListUnitBookingsHandler{UoWFactory: f.factory}
	all, err := list.Handle(ctx, ListUnitBookingsQuery{UnitID: "1"})
	require.NoError(t, err)
	require.Len(t, all.Items, 2)
	assert.Equal(t, "2024-06-05", all.Items[0].StartDate)

	active, err := list.Handle(ctx, ListUnitBookingsQuery{UnitID: "1", Status: "active"})
	require.NoError(t, err)
	require.Len(t, active.Items, 1)
	assert.Equal(t, "bob", active.Items[0].CustomerID)

	cancelled, err := list.Handle(ctx, ListUnitBookingsQuery{UnitID: "1", Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, cancelled.Items, 1)
	assert.Equal(t, first.Booking.ID, cancelled.Items[0].ID)

	_, err = list.Handle(ctx, ListUnitBookingsQuery{UnitID: "ghost"})
	assert.ErrorIs(t, err, domainfleet.ErrUnitNotFound)

	got, err := (&GetBookingHandler{UoWFactory: f.factory}).Handle(ctx, GetBookingQuery{BookingID: first.Booking.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusCancelled), got.Status)
}
