package repository

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartRepository is the cart collaborator surface the orchestrator reads
// through. Placement only ever snapshots a cart; mutation happens on the
// cart endpoints and in the final clear-on-commit.
type CartRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Snapshot(ctx context.Context, userID uuid.UUID) (*models.CartSnapshot, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
}

type GormCartRepository struct {
	db *gorm.DB
}

func NewGormCartRepository(db *gorm.DB) *GormCartRepository {
	return &GormCartRepository{db: db}
}

// Get returns the user's cart with items, or nil when none exists yet.
func (r *GormCartRepository) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}
	return &cart, nil
}

// Snapshot joins cart items against products, capturing quantity, the
// currently stored version and the unit price in one read. Returns nil when
// the user has no cart.
func (r *GormCartRepository) Snapshot(ctx context.Context, userID uuid.UUID) (*models.CartSnapshot, error) {
	cart, err := r.Get(ctx, userID)
	if err != nil || cart == nil {
		return nil, err
	}

	var lines []models.CartLine
	err = r.db.WithContext(ctx).
		Table("cart_items").
		Select("cart_items.product_id, products.name, cart_items.quantity, products.price AS unit_price, products.version").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("cart_items.cart_id = ?", cart.ID).
		Scan(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("snapshot cart: %w", err)
	}

	return &models.CartSnapshot{
		CartID: cart.ID,
		UserID: userID,
		Lines:  lines,
	}, nil
}

// AddItem merges quantity into an existing line or appends a new one,
// creating the cart on first use.
func (r *GormCartRepository) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		err := tx.Where("user_id = ?", userID).First(&cart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cart = models.Cart{UserID: userID}
			if err := tx.Create(&cart).Error; err != nil {
				return fmt.Errorf("create cart: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("fetch cart: %w", err)
		}

		var item models.CartItem
		err = tx.Where("cart_id = ? AND product_id = ?", cart.ID, productID).First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			item = models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: quantity}
			return tx.Create(&item).Error
		}
		if err != nil {
			return fmt.Errorf("fetch cart item: %w", err)
		}

		return tx.Model(&item).Update("quantity", item.Quantity+quantity).Error
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID)
}

func (r *GormCartRepository) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	cart, err := r.Get(ctx, userID)
	if err != nil {
		return err
	}
	if cart == nil {
		return gorm.ErrRecordNotFound
	}
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cart.ID, productID).
		Delete(&models.CartItem{}).Error
}
