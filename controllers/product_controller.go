package controllers

import (
	"net/http"

	"checkout-service/cache"
	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/repository"

	"github.com/gin-gonic/gin"
)

type ProductController struct {
	products repository.ProductRepository
	cache    *cache.CacheManager
}

func NewProductController(products repository.ProductRepository, cacheManager *cache.CacheManager) *ProductController {
	return &ProductController{products: products, cache: cacheManager}
}

type ProductCreateRequest struct {
	Name          string  `json:"name" binding:"required"`
	Category      string  `json:"category"`
	Price         float64 `json:"price" binding:"required,gt=0"`
	StockQuantity int     `json:"stock_quantity" binding:"required,gte=0"`
}

// ListProducts serves the catalog with optional category filter and price
// sort, cache-aside.
func (pc *ProductController) ListProducts(ctx *gin.Context) {
	category := ctx.Query("category")
	sortByPrice := ctx.Query("sort_by_price")
	if sortByPrice != "" && sortByPrice != "asc" && sortByPrice != "desc" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "sort_by_price must be asc or desc"})
		return
	}

	if cached, ok := pc.cache.GetProductList(ctx.Request.Context(), category, sortByPrice); ok {
		ctx.JSON(http.StatusOK, cached)
		return
	}

	products, err := pc.products.List(ctx.Request.Context(), repository.ProductFilters{
		Category:    category,
		SortByPrice: sortByPrice,
	})
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}

	pc.cache.SetProductListAsync(category, sortByPrice, products)
	ctx.JSON(http.StatusOK, products)
}

// CreateProduct adds a catalog entry (admin only) and stales the listings.
func (pc *ProductController) CreateProduct(ctx *gin.Context) {
	if !middleware.IsAdmin(ctx) {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Only admins can add products"})
		return
	}

	var req ProductCreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if req.Category == "" {
		req.Category = "General"
	}

	product := &models.Product{
		Name:          req.Name,
		Category:      req.Category,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		Version:       1,
	}
	if err := pc.products.Create(ctx.Request.Context(), product); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}

	// best-effort; a stale listing self-corrects on TTL expiry
	_ = pc.cache.Invalidate(ctx.Request.Context())

	ctx.JSON(http.StatusCreated, product)
}
