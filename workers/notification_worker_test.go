package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-service/models"
	"checkout-service/sender"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDedup struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{keys: make(map[string]bool)}
}

func (f *fakeDedup) SetIfAbsent(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeDedup) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

type fakeSender struct {
	mu       sync.Mutex
	failures int // sends fail until failures attempts have happened
	attempts int
	sent     []string
}

func (f *fakeSender) SendEmail(_ context.Context, to, _, _ string) (sender.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return sender.SendResult{}, errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, to)
	return sender.SendResult{MessageID: "msg-1", SentAt: time.Now()}, nil
}

type fakeDLQ struct {
	mu       sync.Mutex
	messages [][]byte
}

func (f *fakeDLQ) Publish(_ context.Context, _, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, value)
	return nil
}

func newTestWorker(dedup IdempotencyStore, emails sender.EmailSender, dlq DeadLetter, maxAttempts int) *NotificationWorker {
	return NewNotificationWorker(WorkerConfig{
		Brokers:     []string{"localhost:9092"},
		Topic:       "order.confirmed",
		GroupID:     "test",
		MaxAttempts: maxAttempts,
		BaseBackoff: time.Millisecond,
	}, dedup, emails, dlq, zap.NewNop())
}

func eventPayload(t *testing.T, orderID string) []byte {
	t.Helper()
	data, err := json.Marshal(models.OrderConfirmedEvent{
		Event:          models.EventOrderConfirmed,
		OrderID:        orderID,
		UserID:         "user-1",
		Email:          "buyer@example.com",
		TotalPrice:     42.00,
		IdempotencyKey: orderID,
		Timestamp:      time.Now(),
	})
	require.NoError(t, err)
	return data
}

func TestProcessMessage_SendsOnce(t *testing.T) {
	dedup := newFakeDedup()
	emails := &fakeSender{}
	dlq := &fakeDLQ{}
	w := newTestWorker(dedup, emails, dlq, 3)

	w.processMessage(context.Background(), []byte("order-1"), eventPayload(t, "order-1"))

	assert.Equal(t, []string{"buyer@example.com"}, emails.sent)
	assert.Empty(t, dlq.messages)
}

// Redelivering the same job must not produce a second send.
func TestProcessMessage_IdempotentRedelivery(t *testing.T) {
	dedup := newFakeDedup()
	emails := &fakeSender{}
	dlq := &fakeDLQ{}
	w := newTestWorker(dedup, emails, dlq, 3)

	payload := eventPayload(t, "order-1")
	w.processMessage(context.Background(), []byte("order-1"), payload)
	w.processMessage(context.Background(), []byte("order-1"), payload)

	assert.Len(t, emails.sent, 1)
	assert.Equal(t, 1, emails.attempts)
}

func TestProcessMessage_RetriesThenSucceeds(t *testing.T) {
	dedup := newFakeDedup()
	emails := &fakeSender{failures: 2}
	dlq := &fakeDLQ{}
	w := newTestWorker(dedup, emails, dlq, 5)

	w.processMessage(context.Background(), []byte("order-1"), eventPayload(t, "order-1"))

	assert.Equal(t, 3, emails.attempts)
	assert.Len(t, emails.sent, 1)
	assert.Empty(t, dlq.messages)
}

// Exhausted retries dead-letter the job and free the idempotency claim so a
// manual redelivery can try again.
func TestProcessMessage_DeadLettersOnExhaustion(t *testing.T) {
	dedup := newFakeDedup()
	emails := &fakeSender{failures: 100}
	dlq := &fakeDLQ{}
	w := newTestWorker(dedup, emails, dlq, 3)

	payload := eventPayload(t, "order-1")
	w.processMessage(context.Background(), []byte("order-1"), payload)

	assert.Equal(t, 3, emails.attempts)
	assert.Empty(t, emails.sent)
	require.Len(t, dlq.messages, 1)
	assert.JSONEq(t, string(payload), string(dlq.messages[0]))
	assert.False(t, dedup.keys["order-1"])
}

func TestProcessMessage_DropsInvalidPayload(t *testing.T) {
	dedup := newFakeDedup()
	emails := &fakeSender{}
	dlq := &fakeDLQ{}
	w := newTestWorker(dedup, emails, dlq, 3)

	w.processMessage(context.Background(), nil, []byte("not json"))

	assert.Zero(t, emails.attempts)
	assert.Empty(t, dlq.messages)
}
