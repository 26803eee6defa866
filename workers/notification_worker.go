package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/models"
	"checkout-service/sender"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// IdempotencyStore claims a job key before sending; a claim that fails means
// another delivery of the same job already went through.
type IdempotencyStore interface {
	SetIfAbsent(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// DeadLetter receives jobs that exhausted their retry budget.
type DeadLetter interface {
	Publish(ctx context.Context, key, value []byte) error
}

type WorkerConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	MaxAttempts int
	BaseBackoff time.Duration
}

// NotificationWorker drains the confirmation queue on its own schedule.
// Delivery is at-least-once; the idempotency check keeps redelivered jobs
// from sending twice, and terminal failures go to the dead-letter topic
// without ever touching order state.
type NotificationWorker struct {
	reader *kafkago.Reader
	dedup  IdempotencyStore
	emails sender.EmailSender
	dlq    DeadLetter
	cfg    WorkerConfig
	logger *zap.Logger
}

func NewNotificationWorker(
	cfg WorkerConfig,
	dedup IdempotencyStore,
	emails sender.EmailSender,
	dlq DeadLetter,
	logger *zap.Logger,
) *NotificationWorker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	return &NotificationWorker{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1e3,
			MaxBytes: 10e6,
		}),
		dedup:  dedup,
		emails: emails,
		dlq:    dlq,
		cfg:    cfg,
		logger: logger,
	}
}

func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info("notification worker started",
		zap.String("topic", w.cfg.Topic),
		zap.String("group", w.cfg.GroupID),
	)

	for {
		m, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("notification worker shutting down")
				return
			}
			w.logger.Error("kafka read error", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		w.processMessage(ctx, m.Key, m.Value)
	}
}

func (w *NotificationWorker) Close() error {
	return w.reader.Close()
}

// processMessage handles one delivery of a confirmation job.
func (w *NotificationWorker) processMessage(ctx context.Context, key, value []byte) {
	var evt models.OrderConfirmedEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		w.logger.Error("invalid notification payload, dropping",
			zap.ByteString("payload", value),
			zap.Error(err),
		)
		return
	}
	if evt.IdempotencyKey == "" {
		evt.IdempotencyKey = evt.OrderID
	}

	claimed, err := w.dedup.SetIfAbsent(ctx, evt.IdempotencyKey)
	if err != nil {
		w.logger.Error("idempotency check failed",
			zap.String("order_id", evt.OrderID),
			zap.Error(err),
		)
		return
	}
	if !claimed {
		w.logger.Info("duplicate delivery, skipping",
			zap.String("order_id", evt.OrderID),
		)
		return
	}

	if err := w.sendWithRetry(ctx, evt); err != nil {
		w.logger.Error("notification exhausted retries, dead-lettering",
			zap.String("order_id", evt.OrderID),
			zap.Int("attempts", w.cfg.MaxAttempts),
			zap.Error(err),
		)
		// Free the claim so a manual redelivery can try again.
		if relErr := w.dedup.Release(ctx, evt.IdempotencyKey); relErr != nil {
			w.logger.Error("failed to release idempotency key",
				zap.String("order_id", evt.OrderID),
				zap.Error(relErr),
			)
		}
		if dlqErr := w.dlq.Publish(ctx, key, value); dlqErr != nil {
			w.logger.Error("failed to dead-letter notification",
				zap.String("order_id", evt.OrderID),
				zap.Error(dlqErr),
			)
		}
	}
}

// sendWithRetry delivers the email with exponential backoff between attempts.
func (w *NotificationWorker) sendWithRetry(ctx context.Context, evt models.OrderConfirmedEvent) error {
	subject := "Order Confirmed!"
	body := fmt.Sprintf("Your order %s has been placed. Total: %.2f", evt.OrderID, evt.TotalPrice)

	var lastErr error
	backoff := w.cfg.BaseBackoff

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		result, err := w.emails.SendEmail(ctx, evt.Email, subject, body)
		if err == nil {
			w.logger.Info("order confirmation sent",
				zap.String("order_id", evt.OrderID),
				zap.String("recipient", evt.Email),
				zap.String("message_id", result.MessageID),
				zap.Int("attempt", attempt),
			)
			return nil
		}
		lastErr = err

		w.logger.Warn("send attempt failed",
			zap.String("order_id", evt.OrderID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return lastErr
}
