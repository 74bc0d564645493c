package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/storefront/api/internal/repositories"
)

// ProductCache is a read-through cache for single products.
type ProductCache interface {
	Get(ctx context.Context, productID string) (Product, bool, error)
	Set(ctx context.Context, product Product) error
	Invalidate(ctx context.Context, productID string) error
}

// CatalogServiceDeps wires the dependencies required by the catalog service.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
	// Categories, when set, makes upserts reject unknown category references.
	Categories repositories.CategoryRepository
	Cache      ProductCache
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	cache      ProductCache
	now        func() time.Time
	logger     func(ctx context.Context, event string, fields map[string]any)
}

const (
	defaultProductListLimit = 50
	maxProductListLimit     = 200
)

// NewCatalogService constructs a CatalogService. The cache is optional.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		cache:      deps.Cache,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter repositories.ProductFilter) ([]Product, error) {
	filter.CategoryID = strings.TrimSpace(filter.CategoryID)
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultProductListLimit
	case filter.Limit > maxProductListLimit:
		filter.Limit = maxProductListLimit
	}
	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, storeError("list products", err)
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, badRequest("product_required", "productId is required")
	}
	if s.cache != nil {
		product, ok, err := s.cache.Get(ctx, productID)
		if err != nil {
			s.logger(ctx, "catalog.cache.read_failed", map[string]any{"productId": productID, "error": err.Error()})
		} else if ok {
			return product, nil
		}
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Product{}, notFound("product_not_found", "Product not found")
		}
		return Product{}, storeError("load product", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, product); err != nil {
			s.logger(ctx, "catalog.cache.write_failed", map[string]any{"productId": productID, "error": err.Error()})
		}
	}
	return product, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return Product{}, badRequest("product_required", "productId is required")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, badRequest("invalid_product", "Product name is required")
	}
	if !cmd.Price.IsPositive() {
		return Product{}, badRequest("invalid_product", "Price must be greater than zero")
	}
	if cmd.Stock < 0 {
		return Product{}, badRequest("invalid_product", "Stock must not be negative")
	}
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID != "" && s.categories != nil {
		if _, err := s.categories.Get(ctx, categoryID); err != nil {
			if isRepoNotFound(err) {
				return Product{}, badRequest("category_not_found", "Category not found")
			}
			return Product{}, storeError("load category", err)
		}
	}
	product, err := s.products.Upsert(ctx, Product{
		ID:         id,
		Name:       name,
		Price:      cmd.Price,
		Stock:      cmd.Stock,
		CategoryID: categoryID,
		UpdatedAt:  s.now(),
	})
	if err != nil {
		return Product{}, storeError("upsert product", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger(ctx, "catalog.cache.invalidate_failed", map[string]any{"productId": id, "error": err.Error()})
		}
	}
	s.logger(ctx, "catalog.product.upserted", map[string]any{"productId": id})
	return product, nil
}
