package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appoutbox "rentpool/internal/app/outbox"
)

var ErrRelayNotConfigured = errors.New("outbox: relay missing dependencies")

// Record is an outbox entry claimed for delivery.
type Record struct {
	appoutbox.EventRecord
	Attempts int
}

// Store is the delivery side of an outbox. Claim returns nil when nothing is due.
type Store interface {
	Claim(ctx context.Context, workerID string) (*Record, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Relay drains committed outbox records into a Producer as CloudEvents.
type Relay struct {
	Store       Store
	Producer    Producer
	Logger      *slog.Logger
	Interval    time.Duration
	BatchSize   int
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration

	wakeOnce sync.Once
	wake     chan struct{}
}

// Flush asks a running relay to drain now instead of waiting for the next tick.
func (r *Relay) Flush(context.Context) error {
	select {
	case r.wakeCh() <- struct{}{}:
	default:
	}
	return nil
}

func (r *Relay) Run(ctx context.Context) error {
	if r.Store == nil || r.Producer == nil {
		return ErrRelayNotConfigured
	}
	ticker := time.NewTicker(r.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.wakeCh():
		}
		if _, err := r.Drain(ctx); err != nil {
			return err
		}
	}
}

// Drain publishes up to one batch of due records and reports how many were sent.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	sent := 0
	for i := 0; i < r.batchSize(); i++ {
		ok, err := r.processOnce(ctx)
		if err != nil {
			return sent, err
		}
		if !ok {
			break
		}
		sent++
	}
	return sent, nil
}

// processOnce reports false when there was nothing to claim. Delivery failures
// are rescheduled and do not stop the relay.
func (r *Relay) processOnce(ctx context.Context) (bool, error) {
	rec, err := r.Store.Claim(ctx, r.workerID())
	if err != nil || rec == nil {
		return false, err
	}
	topic := r.topicFor(rec.Name)
	payload, headers, err := r.formatPayload(rec)
	if err == nil {
		err = r.Producer.Publish(ctx, topic, rec.Aggregate, payload, headers)
	}
	if err != nil {
		r.log().Warn("outbox delivery failed", "event_id", rec.ID, "event", rec.Name, "attempts", rec.Attempts+1, "err", err)
		if markErr := r.Store.MarkFailed(ctx, rec.ID, r.nextRetry(rec.Attempts), err.Error()); markErr != nil {
			return false, markErr
		}
		return true, nil
	}
	return true, r.Store.MarkSent(ctx, rec.ID)
}

func (r *Relay) formatPayload(rec *Record) ([]byte, map[string]string, error) {
	data := map[string]any{}
	if err := json.Unmarshal(rec.Payload, &data); err != nil {
		return nil, nil, err
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              rec.ID,
		"type":            rec.Name + ".v1",
		"source":          r.source(),
		"subject":         rec.Aggregate,
		"time":            rec.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	if trace, ok := rec.Headers["traceparent"]; ok {
		evt["traceparent"] = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
		"ce-id":        rec.ID,
		"ce-type":      rec.Name,
	}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// topicFor maps "booking.confirmed" to "<prefix>booking.events.v1".
func (r *Relay) topicFor(name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return r.TopicPrefix + base + ".events.v1"
}

func (r *Relay) wakeCh() chan struct{} {
	r.wakeOnce.Do(func() { r.wake = make(chan struct{}, 1) })
	return r.wake
}

func (r *Relay) workerID() string {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return r.ID
}

func (r *Relay) interval() time.Duration {
	if r.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return r.Interval
}

func (r *Relay) batchSize() int {
	if r.BatchSize <= 0 {
		return 100
	}
	return r.BatchSize
}

func (r *Relay) nextRetry(attempts int) time.Time {
	if attempts < len(r.Backoff) {
		return time.Now().Add(r.Backoff[attempts])
	}
	if len(r.Backoff) > 0 {
		return time.Now().Add(r.Backoff[len(r.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}

func (r *Relay) source() string {
	if r.Source != "" {
		return r.Source
	}
	return "app://rentpool"
}

func (r *Relay) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

var _ appoutbox.Flusher = (*Relay)(nil)
