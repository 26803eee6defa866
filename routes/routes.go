package routes

import (
	"net/http"

	"checkout-service/controllers"
	"checkout-service/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(
	r *gin.Engine,
	orders *controllers.OrderController,
	products *controllers.ProductController,
	carts *controllers.CartController,
) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/products", products.ListProducts)

	authed := r.Group("/")
	authed.Use(middleware.AuthMiddleware())

	authed.POST("/products", products.CreateProduct)

	authed.POST("/cart/items", carts.AddItem)
	authed.GET("/cart", carts.GetCart)
	authed.DELETE("/cart/items/:productId", carts.RemoveItem)

	authed.POST("/orders", orders.PlaceOrder)
	authed.GET("/orders", orders.GetOrders)
	authed.GET("/orders/:id", orders.GetOrderByID)
}
