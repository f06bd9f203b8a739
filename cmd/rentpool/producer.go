package main

import (
	"context"
	"log/slog"

	"rentpool/internal/infra/broker/kafka"
	"rentpool/internal/infra/broker/rabbitmq"
	"rentpool/internal/infra/config"
	infraoutbox "rentpool/internal/infra/outbox"
)

// logProducer stands in for a broker when BROKER=none so the outbox still drains.
type logProducer struct {
	logger *slog.Logger
}

func (p logProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	p.logger.Debug("event published", "topic", topic, "key", key, "type", headers["ce-type"], "bytes", len(payload))
	return nil
}

func openProducer(cfg config.Config, logger *slog.Logger) (infraoutbox.Producer, func(), error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		p, err := kafka.NewProducer(cfg.KafkaBrokers, "rentpool")
		if err != nil {
			return nil, nil, err
		}
		return p, func() { closeQuietly(logger, "kafka producer", p.Close) }, nil
	case config.BrokerRabbitMQ:
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { closeQuietly(logger, "rabbitmq publisher", p.Close) }, nil
	default:
		return logProducer{logger: logger.With("component", "outbox")}, func() {}, nil
	}
}

func closeQuietly(logger *slog.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn("close failed", "component", name, "error", err)
	}
}
