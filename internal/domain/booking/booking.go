package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
	"rentpool/internal/domain/shared/events"
)

var (
	ErrInvalidState       = errors.New("booking: invalid state transition")
	ErrBookingNotFound    = errors.New("booking: not found")
	ErrCustomerIDRequired = errors.New("booking: customer id required")
	ErrUnitIDRequired     = errors.New("booking: unit id required")

	// ErrUnitNoLossTolerance means an explicitly chosen unit is taken. It is never
	// substituted with another unit.
	ErrUnitNoLossTolerance = errors.New("booking: requested unit is no longer available")
	// ErrTimeout means the deadline passed before a reservation could be committed.
	ErrTimeout = errors.New("booking: timed out before a unit could be reserved")
)

type BookingID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that occupy a unit.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

// UsageStatuses count towards least_used history.
var UsageStatuses = []Status{StatusPending, StatusConfirmed, StatusCompleted}

func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", errors.New("booking: unknown status " + raw)
}

// Booking records one customer's hold on one concrete unit for a range of days.
type Booking struct {
	ID         BookingID
	UnitID     fleet.UnitID
	GroupID    fleet.GroupID
	CustomerID string
	Range      daterange.DateRange
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	// Insert stores a new booking. Stores enforce that no two active bookings
	// on the same unit overlap and report violations as a write conflict.
	Insert(ctx context.Context, booking *Booking) error
	Save(ctx context.Context, booking *Booking) error
	// ActiveOverlapping returns active bookings on any of the units that overlap r.
	ActiveOverlapping(ctx context.Context, units []fleet.UnitID, r daterange.DateRange) ([]*Booking, error)
	ListByUnit(ctx context.Context, unitID fleet.UnitID) ([]*Booking, error)
	// UsageCounts counts non-cancelled bookings per unit. Units without history are absent.
	UsageCounts(ctx context.Context, units []fleet.UnitID) (map[fleet.UnitID]int, error)
}

type CreateParams struct {
	ID         BookingID
	UnitID     fleet.UnitID
	GroupID    fleet.GroupID
	CustomerID string
	Range      daterange.DateRange
	Pinned     bool
	CreatedAt  time.Time
}

func NewBooking(params CreateParams) (*Booking, error) {
	if params.ID == "" {
		return nil, errors.New("booking: id required")
	}
	if params.UnitID == "" {
		return nil, ErrUnitIDRequired
	}
	customer := strings.TrimSpace(params.CustomerID)
	if customer == "" {
		return nil, ErrCustomerIDRequired
	}
	if err := params.Range.Validate(); err != nil {
		return nil, err
	}
	now := params.CreatedAt.UTC()
	b := &Booking{
		ID:         params.ID,
		UnitID:     params.UnitID,
		GroupID:    params.GroupID,
		CustomerID: customer,
		Range:      params.Range,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	b.Record(BookingRequested{
		BookingID:  b.ID,
		UnitID:     b.UnitID,
		GroupID:    b.GroupID,
		CustomerID: b.CustomerID,
		Range:      b.Range,
		Pinned:     params.Pinned,
		At:         now,
	})
	return b, nil
}

func (b *Booking) IsActive() bool {
	return b.Status.IsActive()
}

func (b *Booking) Confirm(now time.Time) error {
	if b.Status != StatusPending {
		return ErrInvalidState
	}
	b.Status = StatusConfirmed
	b.UpdatedAt = now.UTC()
	b.Record(BookingConfirmed{BookingID: b.ID, UnitID: b.UnitID, Range: b.Range, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Complete(now time.Time) error {
	if b.Status != StatusConfirmed {
		return ErrInvalidState
	}
	b.Status = StatusCompleted
	b.UpdatedAt = now.UTC()
	b.Record(BookingCompleted{BookingID: b.ID, UnitID: b.UnitID, At: b.UpdatedAt})
	return nil
}

// Cancel releases the unit for the booked range.
func (b *Booking) Cancel(reason string, now time.Time) error {
	if !b.IsActive() {
		return ErrInvalidState
	}
	b.Status = StatusCancelled
	b.UpdatedAt = now.UTC()
	b.Record(BookingCancelled{BookingID: b.ID, UnitID: b.UnitID, Range: b.Range, Reason: strings.TrimSpace(reason), At: b.UpdatedAt})
	return nil
}

// Clone returns a copy without pending events.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	return &Booking{
		ID:         b.ID,
		UnitID:     b.UnitID,
		GroupID:    b.GroupID,
		CustomerID: b.CustomerID,
		Range:      b.Range,
		Status:     b.Status,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
		Version:    b.Version,
	}
}
