package models

import "github.com/google/uuid"

// CartLine is one line of an immutable cart snapshot taken at the start of
// order placement: the quantity requested plus the product version and unit
// price known at that instant.
type CartLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Version   int       `json:"version"`
}

type CartSnapshot struct {
	CartID uuid.UUID  `json:"cart_id"`
	UserID uuid.UUID  `json:"user_id"`
	Lines  []CartLine `json:"lines"`
}
