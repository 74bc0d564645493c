// Package memory provides mutex-guarded repositories for local runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/storefront/api/internal/repositories"
)

// Registry bundles the in-memory repositories behind repositories.Registry.
type Registry struct {
	accounts   *AccountRepository
	carts      *CartRepository
	products   *ProductRepository
	orders     *OrderRepository
	wishlists  *WishlistRepository
	reviews    *ReviewRepository
	categories *CategoryRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs empty in-memory repositories sharing the supplied clock.
func NewRegistry(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	health, _ := repositories.NewDependencyHealthRepository(nil)
	return &Registry{
		accounts:   NewAccountRepository(clock),
		carts:      NewCartRepository(clock),
		products:   NewProductRepository(clock),
		orders:     NewOrderRepository(clock),
		wishlists:  NewWishlistRepository(clock),
		reviews:    NewReviewRepository(clock),
		categories: NewCategoryRepository(clock),
		health:     health,
	}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Accounts() repositories.AccountRepository    { return r.accounts }
func (r *Registry) Carts() repositories.CartRepository          { return r.carts }
func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Wishlists() repositories.WishlistRepository  { return r.wishlists }
func (r *Registry) Reviews() repositories.ReviewRepository      { return r.reviews }
func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }

// AccountStore exposes the concrete account repository for seeding.
func (r *Registry) AccountStore() *AccountRepository { return r.accounts }

// ProductStore exposes the concrete product repository for seeding.
func (r *Registry) ProductStore() *ProductRepository { return r.products }

type clocked struct {
	mu  sync.RWMutex
	now func() time.Time
}

func (c *clocked) timestamp() time.Time {
	return c.now().UTC()
}
