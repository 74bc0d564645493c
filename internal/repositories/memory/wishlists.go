package memory

import (
	"context"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// WishlistRepository keeps one wishlist per account.
type WishlistRepository struct {
	clocked
	lists map[string]domain.Wishlist
}

var _ repositories.WishlistRepository = (*WishlistRepository)(nil)

// NewWishlistRepository constructs an empty wishlist store.
func NewWishlistRepository(clock func() time.Time) *WishlistRepository {
	return &WishlistRepository{
		clocked: clocked{now: clock},
		lists:   make(map[string]domain.Wishlist),
	}
}

func (r *WishlistRepository) Get(_ context.Context, accountID string) (domain.Wishlist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list, ok := r.lists[accountID]
	if !ok {
		return domain.Wishlist{AccountID: accountID}, nil
	}
	list.ProductIDs = append([]string(nil), list.ProductIDs...)
	return list, nil
}

func (r *WishlistRepository) Save(_ context.Context, wishlist domain.Wishlist) (domain.Wishlist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wishlist.UpdatedAt = r.timestamp()
	stored := wishlist
	stored.ProductIDs = append([]string(nil), wishlist.ProductIDs...)
	r.lists[wishlist.AccountID] = stored
	return wishlist, nil
}
