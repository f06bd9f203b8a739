package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/dto"
	bookingapp "rentpool/internal/app/handlers/booking"
	domainbooking "rentpool/internal/domain/booking"
	"rentpool/internal/infra/inbox"
)

type recordingBus struct {
	calls []commands.Command
	err   error
}

func (b *recordingBus) Dispatch(_ context.Context, cmd commands.Command) (any, error) {
	b.calls = append(b.calls, cmd)
	if b.err != nil {
		return nil, b.err
	}
	return &dto.Booking{}, nil
}

func message(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "status", Partition: 0, Offset: 7, Value: []byte(value)}
}

func TestStatusHandlerDispatchesOncePerEvent(t *testing.T) {
	bus := &recordingBus{}
	h := &StatusHandler{Bus: bus, Inbox: inbox.NewMemory(0)}
	ctx := context.Background()
	payload := `{"event_id":"e1","booking_id":"b1","action":"cancel","reason":"no show"}`

	require.NoError(t, h.Handle(ctx, message(payload)))
	require.NoError(t, h.Handle(ctx, message(payload)))

	require.Len(t, bus.calls, 1)
	assert.Equal(t, bookingapp.CancelBookingCommand{BookingID: "b1", Reason: "no show"}, bus.calls[0])
}

func TestStatusHandlerAcknowledgesRejectedCommands(t *testing.T) {
	bus := &recordingBus{err: domainbooking.ErrInvalidState}
	h := &StatusHandler{Bus: bus, Inbox: inbox.NewMemory(0)}
	ctx := context.Background()

	assert.NoError(t, h.Handle(ctx, message(`{"event_id":"e1","booking_id":"b1","action":"confirm"}`)))
	assert.NoError(t, h.Handle(ctx, message(`not json`)))
	assert.NoError(t, h.Handle(ctx, message(`{"event_id":"e2","booking_id":"b1","action":"teleport"}`)))
	assert.Len(t, bus.calls, 1)
}

func TestStatusHandlerRedeliversTransientFailures(t *testing.T) {
	bus := &recordingBus{err: errors.New("store unavailable")}
	h := &StatusHandler{Bus: bus, Inbox: inbox.NewMemory(0)}
	ctx := context.Background()
	payload := `{"booking_id":"b1","action":"complete"}`

	require.Error(t, h.Handle(ctx, message(payload)))

	bus.err = nil
	require.NoError(t, h.Handle(ctx, message(payload)), "failed event id is released")
	require.Len(t, bus.calls, 2)
	assert.Equal(t, bookingapp.CompleteBookingCommand{BookingID: "b1"}, bus.calls[1])
}
