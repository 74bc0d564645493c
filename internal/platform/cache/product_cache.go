// Package cache holds Redis-backed read caches.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
)

const (
	productKeyPrefix       = "product:"
	defaultProductCacheTTL = 5 * time.Minute
)

// ProductCache stores product snapshots as JSON with a TTL. Stock is cached too, so checkout and
// cart validation read the repository directly rather than this cache.
type ProductCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewProductCache constructs a cache using client.
func NewProductCache(client redis.UniversalClient, ttl time.Duration) (*ProductCache, error) {
	if client == nil {
		return nil, errors.New("product cache: redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultProductCacheTTL
	}
	return &ProductCache{client: client, ttl: ttl}, nil
}

type cachedProduct struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          string          `json:"price"`
	Stock          int             `json:"stock"`
	CategoryID     string          `json:"categoryId,omitempty"`
	RatingsAverage decimal.Decimal `json:"ratingsAverage"`
	RatingsCount   int             `json:"ratingsCount"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func productKey(productID string) string {
	return productKeyPrefix + strings.TrimSpace(productID)
}

func (c *ProductCache) Get(ctx context.Context, productID string) (domain.Product, bool, error) {
	raw, err := c.client.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, fmt.Errorf("product cache: get: %w", err)
	}
	product, err := decodeProduct(raw)
	if err != nil {
		// drop entries written by an incompatible version
		if delErr := c.client.Del(ctx, productKey(productID)).Err(); delErr != nil {
			return domain.Product{}, false, fmt.Errorf("product cache: drop undecodable entry: %w", delErr)
		}
		return domain.Product{}, false, nil
	}
	return product, true, nil
}

func (c *ProductCache) Set(ctx context.Context, product domain.Product) error {
	payload, err := encodeProduct(product)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, productKey(product.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("product cache: set: %w", err)
	}
	return nil
}

func (c *ProductCache) Invalidate(ctx context.Context, productID string) error {
	if err := c.client.Del(ctx, productKey(productID)).Err(); err != nil {
		return fmt.Errorf("product cache: invalidate: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable. Used as a health check.
func (c *ProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func encodeProduct(product domain.Product) ([]byte, error) {
	payload, err := json.Marshal(cachedProduct{
		ID:             product.ID,
		Name:           product.Name,
		Price:          product.Price.String(),
		Stock:          product.Stock,
		CategoryID:     product.CategoryID,
		RatingsAverage: product.RatingsAverage,
		RatingsCount:   product.RatingsCount,
		UpdatedAt:      product.UpdatedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("product cache: encode: %w", err)
	}
	return payload, nil
}

func decodeProduct(raw []byte) (domain.Product, error) {
	var cached cachedProduct
	if err := json.Unmarshal(raw, &cached); err != nil {
		return domain.Product{}, err
	}
	price, err := decimal.NewFromString(cached.Price)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:             cached.ID,
		Name:           cached.Name,
		Price:          price,
		Stock:          cached.Stock,
		CategoryID:     cached.CategoryID,
		RatingsAverage: cached.RatingsAverage,
		RatingsCount:   cached.RatingsCount,
		UpdatedAt:      cached.UpdatedAt,
	}, nil
}
