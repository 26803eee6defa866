package models

import "time"

// OrderConfirmedEvent is the payload queued for the notification worker.
// IdempotencyKey equals the order id, so redelivery never double-sends.
type OrderConfirmedEvent struct {
	Event          string    `json:"event"` // "order.confirmed"
	OrderID        string    `json:"order_id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	TotalPrice     float64   `json:"total_price"`
	IdempotencyKey string    `json:"idempotency_key"`
	Timestamp      time.Time `json:"timestamp"`
}

const EventOrderConfirmed = "order.confirmed"
