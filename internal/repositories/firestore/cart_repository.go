package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists one cart document per account, keyed by account id.
type CartRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[cartDocument]
	now      func() time.Time
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider, clock func() time.Time) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &CartRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[cartDocument](provider, cartCollection),
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (r *CartRepository) Get(ctx context.Context, accountID string) (domain.Cart, error) {
	accountID = strings.TrimSpace(accountID)
	doc, err := r.base.Get(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{AccountID: accountID}, nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(accountID), nil
}

func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	cart.UpdatedAt = r.now()
	if err := r.base.Set(ctx, cart.AccountID, newCartDocument(cart)); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// Update applies fn to the stored cart inside a transaction, so concurrent adds to the same cart
// do not lose lines.
func (r *CartRepository) Update(ctx context.Context, accountID string, fn func(cart *domain.Cart) error) (domain.Cart, error) {
	accountID = strings.TrimSpace(accountID)
	var saved domain.Cart
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cart := domain.Cart{AccountID: accountID}
		doc, err := r.base.TxGet(ctx, tx, accountID)
		switch {
		case err == nil:
			cart = doc.Data.toDomain(accountID)
		case !isNotFound(err):
			return err
		}
		if err := fn(&cart); err != nil {
			return err
		}
		cart.AccountID = accountID
		cart.UpdatedAt = r.now()
		if err := r.base.TxSet(ctx, tx, accountID, newCartDocument(cart)); err != nil {
			return err
		}
		saved = cart
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return saved, nil
}

func (r *CartRepository) Clear(ctx context.Context, accountID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(accountID))
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return cartDocument{Items: items, UpdatedAt: cart.UpdatedAt}
}

func (d cartDocument) toDomain(accountID string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return domain.Cart{AccountID: accountID, Items: items, UpdatedAt: d.UpdatedAt}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
