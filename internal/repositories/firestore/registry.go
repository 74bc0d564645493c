package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry and owns the provider.
type Registry struct {
	provider   *pfirestore.Provider
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

// NewRegistry wires every Firestore repository. Extra checks are merged into the health repository
// after the Firestore ping.
func NewRegistry(provider *pfirestore.Provider, clock func() time.Time, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	accounts, err := NewAccountRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	wishlists, err := NewWishlistRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	reviews, err := NewReviewRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	categories, err := NewCategoryRepository(provider, clock)
	if err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:   provider,
		accounts:   accounts,
		carts:      carts,
		products:   products,
		orders:     orders,
		wishlists:  wishlists,
		reviews:    reviews,
		categories: categories,
		health:     health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Accounts() repositories.AccountRepository    { return r.accounts }
func (r *Registry) Carts() repositories.CartRepository          { return r.carts }
func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Wishlists() repositories.WishlistRepository  { return r.wishlists }
func (r *Registry) Reviews() repositories.ReviewRepository      { return r.reviews }
func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }
