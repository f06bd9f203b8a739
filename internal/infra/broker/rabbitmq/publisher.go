// Package rabbitmq relays outbox records to a durable topic exchange.
package rabbitmq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	infraoutbox "rentpool/internal/infra/outbox"
)

var ErrPublisherClosed = errors.New("rabbitmq: publisher closed")

// Publisher keeps one connection and reopens the channel after broker errors.
// The outbox topic becomes the routing key, so consumers bind with patterns
// such as "booking.#".
type Publisher struct {
	url      string
	exchange string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	p := &Publisher{url: url, exchange: exchange}
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}
	msg := publishing(key, payload, headers)
	if err := ch.PublishWithContext(ctx, p.exchange, routingKey(topic), false, false, msg); err != nil {
		p.reset()
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

func publishing(key string, payload []byte, headers map[string]string) amqp.Publishing {
	table := amqp.Table{}
	contentType := "application/json"
	var messageID, eventType string
	for k, v := range headers {
		switch k {
		case "content-type":
			contentType = v
		case "ce-id":
			messageID = v
		case "ce-type":
			eventType = v
		}
		table[k] = v
	}
	return amqp.Publishing{
		ContentType:   contentType,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		MessageId:     messageID,
		Type:          eventType,
		CorrelationId: key,
		Headers:       table,
		Body:          payload,
	}
}

// routingKey strips the version suffix: "booking.events.v1" routes as "booking.events".
func routingKey(topic string) string {
	if idx := strings.LastIndex(topic, ".v"); idx > 0 {
		return topic[:idx]
	}
	return topic
}

var _ infraoutbox.Producer = (*Publisher)(nil)
