package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OrderStatusPlaced = "PLACED"
)

// Product rows are created by catalog management and mutated only through the
// stock ledger's conditional decrement. Version advances by exactly one per
// successful stock mutation.
type Product struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name          string    `gorm:"not null;index" json:"name"`
	Category      string    `gorm:"type:varchar(64);not null;default:'General';index" json:"category"`
	Price         float64   `gorm:"not null" json:"price"`
	StockQuantity int       `gorm:"not null;check:stock_quantity >= 0" json:"stock_quantity"`
	Version       int       `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Cart is owned by exactly one user. It is cleared, not deleted, when an
// order commits.
type Cart struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type CartItem struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CartID    uuid.UUID `gorm:"type:uuid;not null;index" json:"cart_id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	Quantity  int       `gorm:"not null" json:"quantity"`
}

// Order and its items are written once, inside the same transaction that
// reserves stock, and are immutable afterwards.
type Order struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID   `gorm:"type:uuid;not null;index" json:"user_id"`
	TotalPrice float64     `gorm:"not null" json:"total_price"`
	Status     string      `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt  time.Time   `gorm:"autoCreateTime" json:"created_at"`
	OrderItems []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

// OrderItem freezes the unit price at placement time. Later product price
// changes never touch it.
type OrderItem struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID         uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID       uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	Quantity        int       `gorm:"not null" json:"quantity"`
	PriceAtPurchase float64   `gorm:"not null" json:"price_at_purchase"`
}
