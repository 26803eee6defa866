package kafka

import (
	"context"
	"encoding/json"

	"checkout-service/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer appends notification jobs to the durable queue. Enqueue returns
// as soon as the broker acknowledges the write; delivery is the worker's
// problem.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	logger.Info("kafka producer initialized",
		zap.String("topic", topic),
		zap.Strings("brokers", brokers),
	)
	return &Producer{writer: w, topic: topic, logger: logger}
}

// Enqueue publishes an order confirmation keyed by order id, so redeliveries
// of the same order land on the same partition.
func (p *Producer) Enqueue(ctx context.Context, evt models.OrderConfirmedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(evt.OrderID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish order confirmation",
			zap.String("order_id", evt.OrderID),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Publish writes a raw message, used for the dead-letter path.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer", zap.String("topic", p.topic))
	return p.writer.Close()
}
