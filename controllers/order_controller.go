package controllers

import (
	"context"
	"net/http"
	"strconv"

	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/repository"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderPlacer is the slice of the order service the transport needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, email string) (*models.Order, *services.ServiceError)
}

type OrderController struct {
	placer    OrderPlacer
	orderRepo repository.OrderRepository
}

func NewOrderController(placer OrderPlacer, orderRepo repository.OrderRepository) *OrderController {
	return &OrderController{placer: placer, orderRepo: orderRepo}
}

// PlaceOrder converts the caller's cart into an order.
func (oc *OrderController) PlaceOrder(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	email := middleware.GetUserEmail(ctx)

	order, svcErr := oc.placer.PlaceOrder(ctx.Request.Context(), userID, email)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"order_id":    order.ID,
		"total_price": order.TotalPrice,
		"status":      order.Status,
	})
}

// GetOrders returns paginated orders for the authenticated user.
func (oc *OrderController) GetOrders(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	page, limit := parsePaginationParams(ctx)

	orders, total, err := oc.orderRepo.FindByUserID(ctx.Request.Context(), userID, page, limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"meta": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetOrderByID returns a specific order for the authenticated user.
func (oc *OrderController) GetOrderByID(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	orderID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := oc.orderRepo.FindByIDAndUserID(ctx.Request.Context(), orderID, userID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}

	ctx.JSON(http.StatusOK, order)
}

func parsePaginationParams(ctx *gin.Context) (int, int) {
	page, err := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
