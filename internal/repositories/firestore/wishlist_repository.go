package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

const wishlistCollection = "wishlists"

// WishlistRepository stores saved product ids per account.
type WishlistRepository struct {
	base *pfirestore.BaseRepository[wishlistDocument]
	now  func() time.Time
}

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider, clock func() time.Time) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &WishlistRepository{
		base: pfirestore.NewBaseRepository[wishlistDocument](provider, wishlistCollection),
		now:  func() time.Time { return clock().UTC() },
	}, nil
}

func (r *WishlistRepository) Get(ctx context.Context, accountID string) (domain.Wishlist, error) {
	doc, err := r.base.Get(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return domain.Wishlist{AccountID: accountID}, nil
		}
		return domain.Wishlist{}, err
	}
	return domain.Wishlist{
		AccountID:  accountID,
		ProductIDs: append([]string(nil), doc.Data.ProductIDs...),
		UpdatedAt:  doc.Data.UpdatedAt,
	}, nil
}

func (r *WishlistRepository) Save(ctx context.Context, wishlist domain.Wishlist) (domain.Wishlist, error) {
	wishlist.UpdatedAt = r.now()
	doc := wishlistDocument{ProductIDs: append([]string{}, wishlist.ProductIDs...), UpdatedAt: wishlist.UpdatedAt}
	if err := r.base.Set(ctx, wishlist.AccountID, doc); err != nil {
		return domain.Wishlist{}, err
	}
	return wishlist, nil
}

type wishlistDocument struct {
	ProductIDs []string  `firestore:"productIds"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

var _ repositories.WishlistRepository = (*WishlistRepository)(nil)
