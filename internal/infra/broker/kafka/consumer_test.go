package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
)

type flakyHandler struct {
	failures int
	calls    int
}

func (h *flakyHandler) Handle(context.Context, *sarama.ConsumerMessage) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("store unavailable")
	}
	return nil
}

func TestDeliverRetriesThroughBackoff(t *testing.T) {
	handler := &flakyHandler{failures: 2}
	h := claimHandler{handler: handler, backoff: []time.Duration{time.Millisecond, time.Millisecond}}

	assert.NoError(t, h.deliver(context.Background(), message("{}")))
	assert.Equal(t, 3, handler.calls)
}

func TestDeliverGivesUpAfterSchedule(t *testing.T) {
	handler := &flakyHandler{failures: 5}
	h := claimHandler{handler: handler, backoff: []time.Duration{time.Millisecond}}

	assert.Error(t, h.deliver(context.Background(), message("{}")))
	assert.Equal(t, 2, handler.calls)
}

func TestDeliverStopsWhenContextEnds(t *testing.T) {
	handler := &flakyHandler{failures: 5}
	h := claimHandler{handler: handler, backoff: []time.Duration{time.Hour}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.deliver(ctx, message("{}"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, handler.calls)
}
