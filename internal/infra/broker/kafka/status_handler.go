package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	"rentpool/internal/app/commands"
	bookingapp "rentpool/internal/app/handlers/booking"
	"rentpool/internal/app/outbox"
	domainbooking "rentpool/internal/domain/booking"
	"rentpool/internal/infra/inbox"
	"rentpool/internal/infra/validation"
)

var ErrUnknownAction = errors.New("kafka: unknown booking status action")

// StatusCommand is the payload operators publish to move a booking through
// its lifecycle, e.g. {"event_id":"...","booking_id":"...","action":"confirm"}.
type StatusCommand struct {
	EventID   string `json:"event_id"`
	BookingID string `json:"booking_id"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
}

// StatusHandler applies booking status commands exactly once per event id.
// Malformed or rejected commands are logged and acknowledged; anything else is
// returned so the message is redelivered.
type StatusHandler struct {
	Bus    commands.Bus
	Inbox  inbox.Store
	Logger *slog.Logger
}

func (h *StatusHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var cmd StatusCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		h.log().Warn("dropping malformed status command", "offset", msg.Offset, "err", err)
		return nil
	}
	if cmd.EventID == "" {
		cmd.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, cmd.EventID)
		if err != nil {
			return err
		}
		if seen {
			h.log().Debug("status command already applied", "event_id", cmd.EventID)
			return nil
		}
	}

	err := h.apply(outbox.WithCorrelationID(ctx, cmd.EventID), cmd)
	switch {
	case err == nil:
		h.log().Info("booking status applied", "event_id", cmd.EventID, "booking_id", cmd.BookingID, "action", cmd.Action)
		return nil
	case permanent(err):
		h.log().Warn("status command rejected", "event_id", cmd.EventID, "booking_id", cmd.BookingID, "action", cmd.Action, "err", err)
		return nil
	default:
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(context.WithoutCancel(ctx), cmd.EventID); ferr != nil {
				h.log().Error("inbox release failed", "event_id", cmd.EventID, "err", ferr)
			}
		}
		return err
	}
}

func (h *StatusHandler) apply(ctx context.Context, cmd StatusCommand) error {
	var err error
	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "confirm":
		_, err = h.Bus.Dispatch(ctx, bookingapp.ConfirmBookingCommand{BookingID: cmd.BookingID})
	case "complete":
		_, err = h.Bus.Dispatch(ctx, bookingapp.CompleteBookingCommand{BookingID: cmd.BookingID})
	case "cancel":
		_, err = h.Bus.Dispatch(ctx, bookingapp.CancelBookingCommand{BookingID: cmd.BookingID, Reason: cmd.Reason})
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	return err
}

func permanent(err error) bool {
	for _, target := range []error{
		ErrUnknownAction,
		validation.ErrInvalid,
		bookingapp.ErrBookingIDRequired,
		domainbooking.ErrBookingNotFound,
		domainbooking.ErrInvalidState,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *StatusHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.DiscardHandler)
}

var _ MessageHandler = (*StatusHandler)(nil)
