package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// ProductRepository keeps catalog entries in a map keyed by id.
type ProductRepository struct {
	clocked
	byID map[string]domain.Product
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs an empty product store.
func NewProductRepository(clock func() time.Time) *ProductRepository {
	return &ProductRepository{
		clocked: clocked{now: clock},
		byID:    make(map[string]domain.Product),
	}
}

func (r *ProductRepository) Get(_ context.Context, productID string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.byID[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.get", "product not found")
	}
	return product, nil
}

func (r *ProductRepository) List(_ context.Context, filter repositories.ProductFilter) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Product, 0, len(r.byID))
	for _, product := range r.byID {
		if filter.CategoryID != "" && product.CategoryID != filter.CategoryID {
			continue
		}
		out = append(out, product)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *ProductRepository) Upsert(_ context.Context, product domain.Product) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[product.ID]; ok {
		product.RatingsAverage, product.RatingsCount = existing.RatingsAverage, existing.RatingsCount
	}
	product.UpdatedAt = r.timestamp()
	r.byID[product.ID] = product
	return product, nil
}

func (r *ProductRepository) SetRating(_ context.Context, productID string, average decimal.Decimal, count int) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.byID[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.setRating", "product not found")
	}
	product.RatingsAverage = average
	product.RatingsCount = count
	r.byID[productID] = product
	return product, nil
}

func (r *ProductRepository) DecrementStock(_ context.Context, productID string, quantity int) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.byID[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.decrementStock", "product not found")
	}
	if product.Stock < quantity {
		return product, repositories.NewConflictError("products.decrementStock", "insufficient stock")
	}
	product.Stock -= quantity
	product.UpdatedAt = r.timestamp()
	r.byID[productID] = product
	return product, nil
}
