package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ProductCachePrefix     = "product:detail:"
	ProductListCachePrefix = "products:v:"
	CacheVersionKey        = "products:version"
)

// CacheManager keeps product reads off the database. List keys embed a
// version counter, so invalidation is one INCR instead of a key scan; every
// entry also carries a TTL as the safety net when an invalidation is lost.
type CacheManager struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCacheManager(client *redis.Client, ttl time.Duration, logger *zap.Logger) *CacheManager {
	return &CacheManager{redis: client, ttl: ttl, logger: logger}
}

// GetProductList returns a cached listing for the filter combination, or
// false on any miss or cache error.
func (cm *CacheManager) GetProductList(ctx context.Context, category, sortByPrice string) ([]models.Product, bool) {
	version, err := cm.getCacheVersion(ctx)
	if err != nil || version == 0 {
		return nil, false
	}

	data, err := cm.redis.Get(ctx, cm.listKey(version, category, sortByPrice)).Result()
	if err != nil {
		return nil, false
	}

	var products []models.Product
	if err := json.Unmarshal([]byte(data), &products); err != nil {
		cm.logger.Warn("failed to unmarshal cached product list", zap.Error(err))
		return nil, false
	}
	return products, true
}

// SetProductListAsync caches a listing without blocking the request path.
func (cm *CacheManager) SetProductListAsync(category, sortByPrice string, products []models.Product) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		version, err := cm.getCacheVersion(ctx)
		if err != nil || version == 0 {
			return
		}

		data, err := json.Marshal(products)
		if err != nil {
			cm.logger.Warn("failed to marshal product list for cache", zap.Error(err))
			return
		}

		if err := cm.redis.Set(ctx, cm.listKey(version, category, sortByPrice), data, cm.ttl).Err(); err != nil {
			cm.logger.Warn("failed to cache product list", zap.Error(err))
		}
	}()
}

// Invalidate stales every cached listing by bumping the version counter.
func (cm *CacheManager) Invalidate(ctx context.Context) error {
	newVersion, err := cm.redis.Incr(ctx, CacheVersionKey).Result()
	if err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	cm.logger.Info("product cache invalidated", zap.Int64("new_version", newVersion))
	return nil
}

// InvalidateProduct stales the listings and drops the product's detail
// entry. Failures are logged, never escalated; TTL expiry self-corrects.
func (cm *CacheManager) InvalidateProduct(ctx context.Context, productID string) {
	if err := cm.Invalidate(ctx); err != nil {
		cm.logger.Error("failed to invalidate list cache",
			zap.String("product_id", productID),
			zap.Error(err),
		)
	}

	if err := cm.redis.Del(ctx, ProductCachePrefix+productID).Err(); err != nil {
		cm.logger.Warn("failed to delete product cache",
			zap.String("product_id", productID),
			zap.Error(err),
		)
	}
}

func (cm *CacheManager) getCacheVersion(ctx context.Context) (int64, error) {
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		ver, err := cm.redis.Get(ctx, CacheVersionKey).Int64()
		if err == nil && ver > 0 {
			return ver, nil
		}

		if err == redis.Nil {
			if err := cm.redis.Set(ctx, CacheVersionKey, 1, 0).Err(); err == nil {
				return 1, nil
			}
		}

		if i < maxRetries-1 {
			time.Sleep(50 * time.Millisecond)
		}
	}

	return 0, fmt.Errorf("failed to get cache version after %d retries", maxRetries)
}

func (cm *CacheManager) listKey(version int64, category, sortByPrice string) string {
	return fmt.Sprintf("%s%d:c:%s:s:%s", ProductListCachePrefix, version, category, sortByPrice)
}
