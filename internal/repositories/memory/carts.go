package memory

import (
	"context"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// CartRepository keeps one cart per account.
type CartRepository struct {
	clocked
	carts map[string]domain.Cart
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs an empty cart store.
func NewCartRepository(clock func() time.Time) *CartRepository {
	return &CartRepository{
		clocked: clocked{now: clock},
		carts:   make(map[string]domain.Cart),
	}
}

func (r *CartRepository) Get(_ context.Context, accountID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load(accountID), nil
}

func (r *CartRepository) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store(cart), nil
}

func (r *CartRepository) Update(_ context.Context, accountID string, fn func(cart *domain.Cart) error) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart := r.load(accountID)
	if err := fn(&cart); err != nil {
		return domain.Cart{}, err
	}
	cart.AccountID = accountID
	return r.store(cart), nil
}

func (r *CartRepository) Clear(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[accountID]; !ok {
		return nil
	}
	r.store(domain.Cart{AccountID: accountID})
	return nil
}

func (r *CartRepository) load(accountID string) domain.Cart {
	cart, ok := r.carts[accountID]
	if !ok {
		return domain.Cart{AccountID: accountID}
	}
	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	return cart
}

func (r *CartRepository) store(cart domain.Cart) domain.Cart {
	cart.UpdatedAt = r.timestamp()
	stored := cart
	stored.Items = append([]domain.CartItem(nil), cart.Items...)
	r.carts[cart.AccountID] = stored
	return cart
}
