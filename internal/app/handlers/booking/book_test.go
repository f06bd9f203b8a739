package booking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentpool/internal/app/uow"
	"rentpool/internal/domain/assignment"
	"rentpool/internal/domain/availability"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
	"rentpool/internal/infra/storage/memory"
)

var (
	june1  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	june5  = time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	june10 = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	store   *memory.Store
	factory memory.Factory
	handler *BookHandler
}

func newFixture(t *testing.T, quantity int, strategy domainfleet.Strategy) *fixture {
	t.Helper()
	store := memory.NewStore()
	factory := memory.Factory{Store: store}

	n := 0
	policy := domainfleet.DefaultPolicy()
	policy.Strategy = strategy
	g, units, err := domainfleet.NewGroup(domainfleet.CreateGroupParams{
		ID:          "G",
		Name:        "Honda PCX",
		VehicleType: "scooter",
		Quantity:    quantity,
		Policy:      policy,
		Template:    domainfleet.UnitTemplate{Available: true},
		NewUnitID: func() domainfleet.UnitID {
			n++
			return domainfleet.UnitID(fmt.Sprintf("%d", n))
		},
		Now: june1,
	})
	require.NoError(t, err)

	ctx := context.Background()
	tx, err := factory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, tx.Fleet().SaveGroup(ctx, g))
	for _, u := range units {
		require.NoError(t, tx.Fleet().SaveUnit(ctx, u))
	}
	require.NoError(t, tx.Commit(ctx))

	var seq atomic.Int64
	return &fixture{
		store:   store,
		factory: factory,
		handler: &BookHandler{
			UoWFactory:  factory,
			Random:      assignment.NewSource(7),
			MaxAttempts: 5,
			NewID:       func() string { return fmt.Sprintf("b%d", seq.Add(1)) },
			Now:         func() time.Time { return june1 },
		},
	}
}

func (f *fixture) freeUnits(t *testing.T, start, end time.Time) []domainfleet.UnitID {
	t.Helper()
	ctx := context.Background()
	tx, err := f.factory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	free, err := availability.New(tx.Fleet(), tx.Bookings()).FreeUnitsInGroup(ctx, "G", daterange.MustNew(start, end))
	require.NoError(t, err)
	return domainfleet.UnitIDs(free)
}

func TestBookSequentialFillsGroupThenReportsNoUnits(t *testing.T) {
	f := newFixture(t, 3, domainfleet.StrategySequential)
	ctx := context.Background()
	cmd := BookCommand{GroupID: "G", CustomerID: "alice", Start: june1, End: june5}

	res, err := f.handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "1", res.Booking.UnitID)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, string(domainbooking.StatusPending), res.Booking.Status)

	assert.Equal(t, []domainfleet.UnitID{"2", "3"}, f.freeUnits(t, june1, june5))

	for _, want := range []string{"2", "3"} {
		res, err := f.handler.Handle(ctx, cmd)
		require.NoError(t, err)
		assert.Equal(t, want, res.Booking.UnitID)
	}

	_, err = f.handler.Handle(ctx, cmd)
	assert.ErrorIs(t, err, assignment.ErrNoUnitsAvailable)
	assert.Len(t, f.store.Bookings(), 3)
}

func TestBookAdjacentRangeOnPinnedUnit(t *testing.T) {
	f := newFixture(t, 3, domainfleet.StrategySequential)
	ctx := context.Background()

	_, err := f.handler.Handle(ctx, BookCommand{UnitID: "1", CustomerID: "alice", Start: june1, End: june5})
	require.NoError(t, err)

	res, err := f.handler.Handle(ctx, BookCommand{UnitID: "1", CustomerID: "bob", Start: june5, End: june10})
	require.NoError(t, err)
	assert.Equal(t, "1", res.Booking.UnitID)
	assert.Equal(t, "G", res.Booking.GroupID)
}

func TestBookPinnedUnitIsNeverSubstituted(t *testing.T) {
	f := newFixture(t, 3, domainfleet.StrategySequential)
	ctx := context.Background()

	_, err := f.handler.Handle(ctx, BookCommand{UnitID: "1", CustomerID: "alice", Start: june1, End: june5})
	require.NoError(t, err)

	_, err = f.handler.Handle(ctx, BookCommand{GroupID: "G", PreferredUnitID: "1", CustomerID: "bob", Start: june1.AddDate(0, 0, 2), End: june10})
	assert.ErrorIs(t, err, domainbooking.ErrUnitNoLossTolerance)
	assert.Len(t, f.store.Bookings(), 1)
}

func TestBookPinnedUnitOutsideGroup(t *testing.T) {
	f := newFixture(t, 2, domainfleet.StrategySequential)
	_, err := f.handler.Handle(context.Background(), BookCommand{GroupID: "other", UnitID: "1", CustomerID: "alice", Start: june1, End: june5})
	assert.ErrorIs(t, err, domainfleet.ErrUnitNotFound)
}

func TestBookLeastUsedPrefersQuietUnit(t *testing.T) {
	f := newFixture(t, 3, domainfleet.StrategyLeastUsed)
	ctx := context.Background()
	earlier := june1.AddDate(0, -1, 0)

	for _, id := range []string{"1", "1", "2"} {
		_, err := f.handler.Handle(ctx, BookCommand{UnitID: id, CustomerID: "history", Start: earlier, End: earlier.AddDate(0, 0, 1)})
		require.NoError(t, err)
		earlier = earlier.AddDate(0, 0, 1)
	}

	res, err := f.handler.Handle(ctx, BookCommand{GroupID: "G", CustomerID: "alice", Start: june1, End: june5})
	require.NoError(t, err)
	assert.Equal(t, "3", res.Booking.UnitID)
}

func TestBookRecordsOutboxEvent(t *testing.T) {
	f := newFixture(t, 1, domainfleet.StrategySequential)
	res, err := f.handler.Handle(context.Background(), BookCommand{GroupID: "G", CustomerID: "alice", Start: june1, End: june5})
	require.NoError(t, err)

	records := f.store.OutboxRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "booking.requested", records[0].Name)
	assert.Equal(t, res.Booking.ID, records[0].Aggregate)
}

func TestBookValidatesInput(t *testing.T) {
	f := newFixture(t, 1, domainfleet.StrategySequential)
	ctx := context.Background()

	_, err := f.handler.Handle(ctx, BookCommand{CustomerID: "alice", Start: june1, End: june5})
	assert.ErrorIs(t, err, ErrTargetRequired)

	_, err = f.handler.Handle(ctx, BookCommand{GroupID: "G", CustomerID: "alice", Start: june5, End: june5})
	assert.ErrorIs(t, err, daterange.ErrInvalidRange)

	_, err = f.handler.Handle(ctx, BookCommand{GroupID: "G", CustomerID: "  ", Start: june1, End: june5})
	assert.ErrorIs(t, err, domainbooking.ErrCustomerIDRequired)

	_, err = f.handler.Handle(ctx, BookCommand{GroupID: "missing", CustomerID: "alice", Start: june1, End: june5})
	assert.ErrorIs(t, err, domainfleet.ErrGroupNotFound)

	_, err = f.handler.Handle(ctx, BookCommand{UnitID: "1", PreferredUnitID: "2", CustomerID: "alice", Start: june1, End: june5})
	assert.ErrorIs(t, err, ErrPinMismatch)
	assert.Empty(t, f.store.Bookings())

	res, err := f.handler.Handle(ctx, BookCommand{UnitID: "1", PreferredUnitID: " 1 ", CustomerID: "alice", Start: june1, End: june5})
	require.NoError(t, err)
	assert.Equal(t, "1", res.Booking.UnitID)
}

func TestBookExpiredDeadlineTimesOut(t *testing.T) {
	f := newFixture(t, 2, domainfleet.StrategySequential)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.handler.Handle(ctx, BookCommand{GroupID: "G", CustomerID: "alice", Start: june1, End: june5})
	assert.ErrorIs(t, err, domainbooking.ErrTimeout)
	assert.Empty(t, f.store.Bookings())
}

func TestBookCancelledContextIsNotATimeout(t *testing.T) {
	f := newFixture(t, 2, domainfleet.StrategySequential)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.handler.Handle(ctx, BookCommand{GroupID: "G", CustomerID: "alice", Start: june1, End: june5})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domainbooking.ErrTimeout)
}

func TestConcurrentBookingsNeverOverlap(t *testing.T) {
	for _, strategy := range domainfleet.Strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			f := newFixture(t, 3, strategy)
			const callers = 12

			var (
				wg        sync.WaitGroup
				successes atomic.Int32
				exhausted atomic.Int32
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := f.handler.Handle(context.Background(), BookCommand{
						GroupID:    "G",
						CustomerID: fmt.Sprintf("c%d", i),
						Start:      june1,
						End:        june5,
					})
					switch {
					case err == nil:
						successes.Add(1)
					case assert.ErrorIs(t, err, assignment.ErrNoUnitsAvailable):
						exhausted.Add(1)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, int32(3), successes.Load())
			assert.Equal(t, int32(callers-3), exhausted.Load())

			perUnit := map[domainfleet.UnitID][]daterange.DateRange{}
			for _, b := range f.store.Bookings() {
				for _, other := range perUnit[b.UnitID] {
					assert.False(t, other.Overlaps(b.Range), "unit %s double booked", b.UnitID)
				}
				perUnit[b.UnitID] = append(perUnit[b.UnitID], b.Range)
			}
			assert.Len(t, perUnit, 3)
		})
	}
}

func TestConcurrentPinnedBookingsHaveOneWinner(t *testing.T) {
	f := newFixture(t, 3, domainfleet.StrategySequential)
	const callers = 8

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.handler.Handle(context.Background(), BookCommand{
				UnitID:     "2",
				CustomerID: fmt.Sprintf("c%d", i),
				Start:      june1,
				End:        june5,
			})
			switch {
			case err == nil:
				successes.Add(1)
			case assert.ErrorIs(t, err, domainbooking.ErrUnitNoLossTolerance):
				rejected.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
	for _, b := range f.store.Bookings() {
		assert.Equal(t, domainfleet.UnitID("2"), b.UnitID)
	}
}

// losingFactory hands out write units whose commit always reports a
// concurrent writer, so every group attempt loses its race.
type losingFactory struct {
	uow.UoWFactory
	commits atomic.Int32
}

func (f *losingFactory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	unit, err := f.UoWFactory.Begin(ctx, opts)
	if err != nil || opts.ReadOnly {
		return unit, err
	}
	return losingUnit{UnitOfWork: unit, commits: &f.commits}, nil
}

type losingUnit struct {
	uow.UnitOfWork
	commits *atomic.Int32
}

func (u losingUnit) Commit(context.Context) error {
	u.commits.Add(1)
	return uow.ErrWriteConflict
}

func TestBookDeadlineDuringBackoffTimesOut(t *testing.T) {
	f := newFixture(t, 3, domainfleet.StrategySequential)
	losing := &losingFactory{UoWFactory: f.factory}
	f.handler.UoWFactory = losing
	f.handler.Backoff = time.Hour
	f.handler.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := f.handler.Handle(context.Background(), BookCommand{GroupID: "G", CustomerID: "alice", Start: june1, End: june5})
	assert.ErrorIs(t, err, domainbooking.ErrTimeout)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, int32(1), losing.commits.Load(), "no attempt starts after the deadline")
	assert.Empty(t, f.store.Bookings())
}

func TestBookBackoffThenExhaustion(t *testing.T) {
	f := newFixture(t, 3, domainfleet.StrategySequential)
	losing := &losingFactory{UoWFactory: f.factory}
	f.handler.UoWFactory = losing
	f.handler.Backoff = time.Millisecond
	f.handler.MaxAttempts = 3

	_, err := f.handler.Handle(context.Background(), BookCommand{GroupID: "G", CustomerID: "alice", Start: june1, End: june5})
	assert.ErrorIs(t, err, assignment.ErrNoUnitsAvailable)
	assert.Equal(t, int32(3), losing.commits.Load())
}
