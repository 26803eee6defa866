package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"checkout-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// getPostgresDB connects to a local test database and skips the test when
// none is reachable, so the suite runs without backing stores installed.
func getPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=checkout_test port=5432 sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Skipf("postgres not available, skipping: %v", err)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	if err := sqlDB.Ping(); err != nil {
		t.Skipf("postgres not available, skipping: %v", err)
	}

	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.Cart{}, &models.CartItem{},
		&models.Order{}, &models.OrderItem{},
	))

	t.Cleanup(func() {
		db.Exec("TRUNCATE order_items, orders, cart_items, carts, products CASCADE")
		_ = sqlDB.Close()
	})
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) models.Product {
	t.Helper()
	p := models.Product{
		ID:            uuid.New(),
		Name:          "Widget",
		Category:      "tools",
		Price:         9.99,
		StockQuantity: stock,
		Version:       1,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func TestCompareAndDecrement_Success(t *testing.T) {
	db := getPostgresDB(t)
	ledger := NewStockLedger(db)
	p := seedProduct(t, db, 10)

	newVersion, err := ledger.CompareAndDecrement(context.Background(), p.ID, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, newVersion)

	var got models.Product
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, 7, got.StockQuantity)
	assert.Equal(t, 2, got.Version)
}

func TestCompareAndDecrement_VersionConflict(t *testing.T) {
	db := getPostgresDB(t)
	ledger := NewStockLedger(db)
	p := seedProduct(t, db, 10)
	ctx := context.Background()

	_, err := ledger.CompareAndDecrement(ctx, p.ID, 1, 1)
	require.NoError(t, err)

	// Second caller still holds the stale version.
	_, err = ledger.CompareAndDecrement(ctx, p.ID, 1, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// Stock must be untouched by the failed attempt.
	var got models.Product
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, 9, got.StockQuantity)
	assert.Equal(t, 2, got.Version)
}

func TestCompareAndDecrement_InsufficientStock(t *testing.T) {
	db := getPostgresDB(t)
	ledger := NewStockLedger(db)
	p := seedProduct(t, db, 2)

	_, err := ledger.CompareAndDecrement(context.Background(), p.ID, 5, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var insErr *InsufficientStockError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, p.ID, insErr.ProductID)
	assert.Equal(t, 2, insErr.Available)
	assert.Equal(t, 5, insErr.Requested)

	// A failed check never advances the version.
	version, verr := ledger.CurrentVersion(context.Background(), p.ID)
	require.NoError(t, verr)
	assert.Equal(t, 1, version)
}

func TestCompareAndDecrement_ProductNotFound(t *testing.T) {
	db := getPostgresDB(t)
	ledger := NewStockLedger(db)

	_, err := ledger.CompareAndDecrement(context.Background(), uuid.New(), 1, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

// Concurrent decrements against one row must serialize: every success bumps
// the version by exactly one and stock never goes below zero.
func TestCompareAndDecrement_ConcurrentSerialization(t *testing.T) {
	db := getPostgresDB(t)
	ledger := NewStockLedger(db)
	p := seedProduct(t, db, 10)
	ctx := context.Background()

	const workers = 20
	var successes int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			version, err := ledger.CurrentVersion(ctx, p.ID)
			if err != nil {
				return
			}
			for attempt := 0; attempt < workers; attempt++ {
				_, err := ledger.CompareAndDecrement(ctx, p.ID, 1, version)
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					return
				}
				if errors.Is(err, ErrInsufficientStock) {
					return
				}
				if errors.Is(err, ErrVersionConflict) {
					version, err = ledger.CurrentVersion(ctx, p.ID)
					if err != nil {
						return
					}
					continue
				}
				return
			}
		}()
	}
	wg.Wait()

	var got models.Product
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, 10-int(successes), got.StockQuantity)
	assert.Equal(t, 1+int(successes), got.Version)
	assert.GreaterOrEqual(t, got.StockQuantity, 0)
}

// A failing step after a reservation must roll the reservation back.
func TestGormOrderStore_RollbackRestoresStock(t *testing.T) {
	db := getPostgresDB(t)
	store := NewGormOrderStore(db)
	p := seedProduct(t, db, 10)
	ctx := context.Background()

	sentinel := errors.New("later step failed")
	err := store.Transact(ctx, func(tx OrderTx) error {
		newVersion, err := tx.CompareAndDecrement(ctx, p.ID, 4, 1)
		require.NoError(t, err)
		require.Equal(t, 2, newVersion)
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	var got models.Product
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, 10, got.StockQuantity)
	assert.Equal(t, 1, got.Version)
}

func TestGormOrderStore_CommitsOrderAndClearsCart(t *testing.T) {
	db := getPostgresDB(t)
	store := NewGormOrderStore(db)
	p := seedProduct(t, db, 10)
	ctx := context.Background()

	userID := uuid.New()
	cart := models.Cart{ID: uuid.New(), UserID: userID}
	require.NoError(t, db.Create(&cart).Error)
	require.NoError(t, db.Create(&models.CartItem{
		ID: uuid.New(), CartID: cart.ID, ProductID: p.ID, Quantity: 2,
	}).Error)

	order := models.Order{
		ID:         uuid.New(),
		UserID:     userID,
		TotalPrice: 19.98,
		Status:     models.OrderStatusPlaced,
		OrderItems: []models.OrderItem{
			{ProductID: p.ID, Quantity: 2, PriceAtPurchase: 9.99},
		},
	}

	err := store.Transact(ctx, func(tx OrderTx) error {
		if _, err := tx.CompareAndDecrement(ctx, p.ID, 2, 1); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, &order); err != nil {
			return err
		}
		return tx.ClearCart(ctx, cart.ID)
	})
	require.NoError(t, err)

	var gotOrder models.Order
	require.NoError(t, db.Preload("OrderItems").First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPlaced, gotOrder.Status)
	require.Len(t, gotOrder.OrderItems, 1)
	assert.Equal(t, 9.99, gotOrder.OrderItems[0].PriceAtPurchase)

	var itemCount int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", cart.ID).Count(&itemCount).Error)
	assert.Zero(t, itemCount)

	var gotProduct models.Product
	require.NoError(t, db.First(&gotProduct, "id = ?", p.ID).Error)
	assert.Equal(t, 8, gotProduct.StockQuantity)
	assert.Equal(t, 2, gotProduct.Version)
}
