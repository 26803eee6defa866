package repository

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrVersionConflict   = errors.New("stock version conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
)

// InsufficientStockError carries the shortfall detail surfaced to the caller.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): available=%d requested=%d",
		e.ProductID, e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// StockLedger owns per-product quantity and version. Its only mutation is a
// conditional decrement: one atomic UPDATE guarded by the expected version
// and by the remaining quantity, so concurrent writers are serialized at the
// row and no intermediate state is ever observable.
type StockLedger struct {
	db *gorm.DB
}

func NewStockLedger(db *gorm.DB) *StockLedger {
	return &StockLedger{db: db}
}

// CompareAndDecrement decrements stock by quantity and advances the version
// by one, provided the stored version still equals expectedVersion and enough
// stock remains. Returns the new version on success, ErrVersionConflict when
// another writer advanced the version first, or an InsufficientStockError
// when the version matches but the quantity does not cover the request.
func (l *StockLedger) CompareAndDecrement(ctx context.Context, productID uuid.UUID, quantity, expectedVersion int) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("invalid quantity %d", quantity)
	}

	res := l.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND version = ? AND stock_quantity >= ?", productID, expectedVersion, quantity).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity - ?", quantity),
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("decrement stock: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return expectedVersion + 1, nil
	}

	// Zero rows matched: either the version moved or the stock ran out.
	// Re-read to tell the two apart.
	var p models.Product
	err := l.db.WithContext(ctx).
		Select("name", "stock_quantity", "version").
		First(&p, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("re-read product: %w", err)
	}

	if p.Version != expectedVersion {
		return 0, ErrVersionConflict
	}
	return 0, &InsufficientStockError{
		ProductID: productID,
		Name:      p.Name,
		Available: p.StockQuantity,
		Requested: quantity,
	}
}

// CurrentVersion reads the stored version for a retry after a conflict.
func (l *StockLedger) CurrentVersion(ctx context.Context, productID uuid.UUID) (int, error) {
	var p models.Product
	err := l.db.WithContext(ctx).
		Select("version").
		First(&p, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	return p.Version, nil
}
