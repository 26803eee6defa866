package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceError maps a placement failure onto the transport boundary.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// CartReader is the slice of the cart collaborator placement needs: an
// immutable snapshot at call start.
type CartReader interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (*models.CartSnapshot, error)
}

// CacheInvalidator marks cached product listings stale after a commit.
// Best-effort only; failures are logged by the implementation.
type CacheInvalidator interface {
	InvalidateProduct(ctx context.Context, productID string)
}

// NotificationEnqueuer hands a confirmation job to the durable queue.
type NotificationEnqueuer interface {
	Enqueue(ctx context.Context, evt models.OrderConfirmedEvent) error
}

// OrderServiceConfig carries the placement tunables; all of them come from
// the environment.
type OrderServiceConfig struct {
	MaxConflictRetries int
	ConflictBackoff    time.Duration
}

// OrderService converts a cart into a committed order. Reservations, the
// order insert and the cart clear run in one store transaction; cache
// invalidation and the notification job are emitted after commit and never
// block the caller.
type OrderService struct {
	carts    CartReader
	store    repository.OrderStore
	cache    CacheInvalidator
	notifier NotificationEnqueuer
	cfg      OrderServiceConfig
	logger   *zap.Logger
}

func NewOrderService(
	carts CartReader,
	store repository.OrderStore,
	cache CacheInvalidator,
	notifier NotificationEnqueuer,
	cfg OrderServiceConfig,
	logger *zap.Logger,
) *OrderService {
	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = 3
	}
	if cfg.ConflictBackoff <= 0 {
		cfg.ConflictBackoff = 25 * time.Millisecond
	}
	return &OrderService{
		carts:    carts,
		store:    store,
		cache:    cache,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// PlaceOrder drives the cart through reservation and commit for one user.
// On success the returned order is already durable and the side effects are
// in flight.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uuid.UUID, email string) (*models.Order, *ServiceError) {
	snap, err := s.carts.Snapshot(ctx, userID)
	if err != nil {
		s.logger.Error("cart snapshot failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "failed to read cart"}
	}
	if snap == nil || len(snap.Lines) == 0 {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "cart is empty"}
	}

	// Reserve in ascending product id order so concurrent placements that
	// share products never deadlock on row locks.
	lines := make([]models.CartLine, len(snap.Lines))
	copy(lines, snap.Lines)
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})

	order := s.buildOrder(userID, lines)

	err = s.store.Transact(ctx, func(tx repository.OrderTx) error {
		for _, line := range lines {
			if err := s.reserve(ctx, tx, line); err != nil {
				return err
			}
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		return tx.ClearCart(ctx, snap.CartID)
	})
	if err != nil {
		return nil, s.mapPlacementError(userID, err)
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Float64("total_price", order.TotalPrice),
		zap.Int("items", len(order.OrderItems)),
	)

	s.emitSideEffects(order, lines, email)
	return order, nil
}

func (s *OrderService) buildOrder(userID uuid.UUID, lines []models.CartLine) *models.Order {
	order := &models.Order{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    models.OrderStatusPlaced,
		CreatedAt: time.Now().UTC(),
	}
	for _, line := range lines {
		order.OrderItems = append(order.OrderItems, models.OrderItem{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			PriceAtPurchase: line.UnitPrice,
		})
		order.TotalPrice += float64(line.Quantity) * line.UnitPrice
	}
	return order
}

// reserve attempts the conditional decrement for one line, re-reading the
// version and retrying on conflict up to the configured bound. Insufficient
// stock is terminal and never retried.
func (s *OrderService) reserve(ctx context.Context, tx repository.OrderTx, line models.CartLine) error {
	expected := line.Version

	for attempt := 1; ; attempt++ {
		_, err := tx.CompareAndDecrement(ctx, line.ProductID, line.Quantity, expected)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		if attempt >= s.cfg.MaxConflictRetries {
			return fmt.Errorf("product %s after %d attempts: %w", line.ProductID, attempt, repository.ErrVersionConflict)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ConflictBackoff * time.Duration(attempt)):
		}

		current, verr := tx.CurrentVersion(ctx, line.ProductID)
		if verr != nil {
			return verr
		}
		expected = current
	}
}

func (s *OrderService) mapPlacementError(userID uuid.UUID, err error) *ServiceError {
	var insufficient *repository.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return &ServiceError{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    insufficient.Error(),
		}
	case errors.Is(err, repository.ErrVersionConflict):
		return &ServiceError{
			StatusCode: http.StatusConflict,
			Message:    "could not confirm stock after concurrent updates - retry",
		}
	case errors.Is(err, repository.ErrProductNotFound):
		return &ServiceError{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "cart references a product that no longer exists",
		}
	default:
		s.logger.Error("order placement failed", zap.String("user_id", userID.String()), zap.Error(err))
		return &ServiceError{
			StatusCode: http.StatusInternalServerError,
			Message:    "failed to place order",
		}
	}
}

// emitSideEffects fires the invalidation signals and the notification job.
// Both are fire-and-forget: the order is already committed and neither
// outcome can change it.
func (s *OrderService) emitSideEffects(order *models.Order, lines []models.CartLine, email string) {
	productIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		productIDs = append(productIDs, line.ProductID.String())
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, pid := range productIDs {
			s.cache.InvalidateProduct(ctx, pid)
		}
	}()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		evt := models.OrderConfirmedEvent{
			Event:          models.EventOrderConfirmed,
			OrderID:        order.ID.String(),
			UserID:         order.UserID.String(),
			Email:          email,
			TotalPrice:     order.TotalPrice,
			IdempotencyKey: order.ID.String(),
			Timestamp:      time.Now().UTC(),
		}
		if err := s.notifier.Enqueue(ctx, evt); err != nil {
			s.logger.Error("failed to enqueue order confirmation",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
		}
	}()
}
