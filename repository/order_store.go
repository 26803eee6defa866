package repository

import (
	"context"
	"fmt"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderTx is the slice of store operations available inside one placement
// transaction. Reservations, the order insert and the cart clear all run
// against the same handle, so the store's rollback undoes any partial
// reservation when a later step fails.
type OrderTx interface {
	CompareAndDecrement(ctx context.Context, productID uuid.UUID, quantity, expectedVersion int) (int, error)
	CurrentVersion(ctx context.Context, productID uuid.UUID) (int, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

// OrderStore opens the atomic unit a placement runs in.
type OrderStore interface {
	Transact(ctx context.Context, fn func(tx OrderTx) error) error
}

type GormOrderStore struct {
	db *gorm.DB
}

func NewGormOrderStore(db *gorm.DB) *GormOrderStore {
	return &GormOrderStore{db: db}
}

func (s *GormOrderStore) Transact(ctx context.Context, fn func(tx OrderTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormOrderTx{tx: tx, ledger: NewStockLedger(tx)})
	})
}

type gormOrderTx struct {
	tx     *gorm.DB
	ledger *StockLedger
}

func (t *gormOrderTx) CompareAndDecrement(ctx context.Context, productID uuid.UUID, quantity, expectedVersion int) (int, error) {
	return t.ledger.CompareAndDecrement(ctx, productID, quantity, expectedVersion)
}

func (t *gormOrderTx) CurrentVersion(ctx context.Context, productID uuid.UUID) (int, error) {
	return t.ledger.CurrentVersion(ctx, productID)
}

func (t *gormOrderTx) CreateOrder(ctx context.Context, order *models.Order) error {
	items := order.OrderItems
	order.OrderItems = nil
	if err := t.tx.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if len(items) > 0 {
		if err := t.tx.WithContext(ctx).Create(&items).Error; err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}
	order.OrderItems = items
	return nil
}

func (t *gormOrderTx) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	if err := t.tx.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
