package repository

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductFilters narrows and orders a listing query.
type ProductFilters struct {
	Category    string
	SortByPrice string // "asc", "desc" or empty
}

type ProductRepository interface {
	List(ctx context.Context, filters ProductFilters) ([]models.Product, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
}

type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) List(ctx context.Context, filters ProductFilters) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})

	if filters.Category != "" {
		query = query.Where("category = ?", filters.Category)
	}
	switch filters.SortByPrice {
	case "asc":
		query = query.Order("price ASC")
	case "desc":
		query = query.Order("price DESC")
	}

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch product: %w", err)
	}
	return &p, nil
}

func (r *GormProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.Version == 0 {
		product.Version = 1
	}
	return r.db.WithContext(ctx).Create(product).Error
}
