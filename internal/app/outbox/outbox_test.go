package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentpool/internal/domain/shared/events"
)

type sampleEvent struct {
	BookingID string    `json:"booking_id"`
	At        time.Time `json:"at"`
}

func (e sampleEvent) EventName() string     { return "booking.requested" }
func (e sampleEvent) AggregateID() string   { return e.BookingID }
func (e sampleEvent) OccurredAt() time.Time { return e.At }

type sliceOutbox struct {
	records []EventRecord
	fail    error
}

func (s *sliceOutbox) Add(_ context.Context, rec EventRecord) error {
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, rec)
	return nil
}

func TestRecordDomainEventsCopiesCorrelation(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.FixedZone("x", 3600))
	box := &sliceOutbox{}
	n := 0
	enc := JSONEventEncoder{IDGenerator: func() string { n++; return "evt-" + string(rune('0'+n)) }}
	ctx := WithCorrelationID(context.Background(), "req-9")

	err := RecordDomainEvents(ctx, box, enc, []events.DomainEvent{
		sampleEvent{BookingID: "b1", At: at},
		sampleEvent{BookingID: "b2", At: at},
	})
	require.NoError(t, err)
	require.Len(t, box.records, 2)

	first := box.records[0]
	assert.Equal(t, "evt-1", first.ID)
	assert.Equal(t, "booking.requested", first.Name)
	assert.Equal(t, "b1", first.Aggregate)
	assert.Equal(t, time.UTC, first.OccurredAt.Location())
	assert.Equal(t, "req-9", first.Headers[HeaderCorrelationID])
	assert.Equal(t, "b2", box.records[1].Aggregate)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(first.Payload, &payload))
	assert.Equal(t, "b1", payload["booking_id"])
}

func TestRecordDomainEventsWithoutCorrelation(t *testing.T) {
	box := &sliceOutbox{}
	require.NoError(t, RecordDomainEvents(context.Background(), box, nil, []events.DomainEvent{sampleEvent{BookingID: "b1"}}))
	require.Len(t, box.records, 1)
	assert.NotEmpty(t, box.records[0].ID)
	assert.NotContains(t, box.records[0].Headers, HeaderCorrelationID)

	assert.NoError(t, RecordDomainEvents(context.Background(), nil, nil, []events.DomainEvent{sampleEvent{}}))
	assert.Equal(t, context.Background(), WithCorrelationID(context.Background(), ""))
}

func TestRecordDomainEventsStopsOnAddError(t *testing.T) {
	boom := errors.New("closed")
	box := &sliceOutbox{fail: boom}
	err := RecordDomainEvents(context.Background(), box, nil, []events.DomainEvent{sampleEvent{BookingID: "b1"}})
	assert.ErrorIs(t, err, boom)
}
