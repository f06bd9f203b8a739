package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// ConsumerOptions tunes a Consumer. Backoff lists the waits between handler
// attempts on the same message; an empty list means a single attempt.
type ConsumerOptions struct {
	Backoff []time.Duration
	Logger  *slog.Logger
}

// Consumer runs a consumer group. A message whose handler still fails after
// every retry is left unmarked, so the group redelivers it after a rebalance
// or restart.
type Consumer struct {
	group sarama.ConsumerGroup
	claim claimHandler
}

func NewConsumer(brokers []string, groupID string, handler MessageHandler, opts ConsumerOptions) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("kafka: message handler required")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = false
	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Consumer{
		group: group,
		claim: claimHandler{handler: handler, backoff: opts.Backoff, logger: logger},
	}, nil
}

// Run consumes topics until ctx ends or the group is closed. Consume returns
// on every rebalance, so it is called in a loop.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		err := c.group.Consume(ctx, topics, c.claim)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case err != nil:
			return err
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type claimHandler struct {
	handler MessageHandler
	backoff []time.Duration
	logger  *slog.Logger
}

func (claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.deliver(sess.Context(), msg); err != nil {
			h.logger.Warn("kafka message not applied",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

// deliver calls the handler, sleeping through the backoff schedule between
// failures. It gives up early when ctx ends.
func (h claimHandler) deliver(ctx context.Context, msg *sarama.ConsumerMessage) error {
	err := h.handler.Handle(ctx, msg)
	for _, wait := range h.backoff {
		if err == nil {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		err = h.handler.Handle(ctx, msg)
	}
	return err
}
