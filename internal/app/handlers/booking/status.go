package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/dto"
	"rentpool/internal/app/handlers/support"
	"rentpool/internal/app/outbox"
	"rentpool/internal/app/uow"
	domainbooking "rentpool/internal/domain/booking"
)

const (
	confirmBookingKey  = "booking.confirm"
	completeBookingKey = "booking.complete"
	cancelBookingKey   = "booking.cancel"
)

var ErrBookingIDRequired = errors.New("booking: booking id is required")

type ConfirmBookingCommand struct {
	BookingID string `validate:"required"`
}

func (c ConfirmBookingCommand) Key() string { return confirmBookingKey }

type CompleteBookingCommand struct {
	BookingID string `validate:"required"`
}

func (c CompleteBookingCommand) Key() string { return completeBookingKey }

type CancelBookingCommand struct {
	BookingID string `validate:"required"`
	Reason    string `validate:"max=500"`
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

// TransitionHandler advances a booking through its lifecycle. Operators drive
// it over HTTP or through the status topic.
type TransitionHandler struct {
	UoWFactory uow.UoWFactory
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *TransitionHandler) Confirm() commands.Handler[ConfirmBookingCommand, *dto.Booking] {
	return commands.HandlerFunc[ConfirmBookingCommand, *dto.Booking](func(ctx context.Context, cmd ConfirmBookingCommand) (*dto.Booking, error) {
		return h.transition(ctx, cmd.BookingID, "confirmed", func(b *domainbooking.Booking, now time.Time) error {
			return b.Confirm(now)
		})
	})
}

func (h *TransitionHandler) Complete() commands.Handler[CompleteBookingCommand, *dto.Booking] {
	return commands.HandlerFunc[CompleteBookingCommand, *dto.Booking](func(ctx context.Context, cmd CompleteBookingCommand) (*dto.Booking, error) {
		return h.transition(ctx, cmd.BookingID, "completed", func(b *domainbooking.Booking, now time.Time) error {
			return b.Complete(now)
		})
	})
}

func (h *TransitionHandler) Cancel() commands.Handler[CancelBookingCommand, *dto.Booking] {
	return commands.HandlerFunc[CancelBookingCommand, *dto.Booking](func(ctx context.Context, cmd CancelBookingCommand) (*dto.Booking, error) {
		return h.transition(ctx, cmd.BookingID, "cancelled", func(b *domainbooking.Booking, now time.Time) error {
			return b.Cancel(cmd.Reason, now)
		})
	})
}

func (h *TransitionHandler) transition(ctx context.Context, rawID, action string, apply func(*domainbooking.Booking, time.Time) error) (*dto.Booking, error) {
	id := strings.TrimSpace(rawID)
	if id == "" {
		return nil, ErrBookingIDRequired
	}
	var out dto.Booking
	err := support.Within(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(id))
		if err != nil {
			return err
		}
		if err := apply(b, h.now()); err != nil {
			return err
		}
		if err := unit.Bookings().Save(ctx, b); err != nil {
			return err
		}
		if err := outbox.RecordDomainEvents(ctx, unit.Outbox(), h.Encoder, b.TakeEvents()); err != nil {
			return err
		}
		out = dto.MapBooking(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("booking "+action, "booking_id", id, "unit_id", out.UnitID)
	}
	return &out, nil
}

func (h *TransitionHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}
