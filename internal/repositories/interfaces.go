package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Accounts() AccountRepository
	Carts() CartRepository
	Products() ProductRepository
	Orders() OrderRepository
	Wishlists() WishlistRepository
	Reviews() ReviewRepository
	Categories() CategoryRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// AccountRepository persists accounts and their wallet balance.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) (domain.Account, error)
	Get(ctx context.Context, accountID string) (domain.Account, error)
	// FindByEmail returns a RepositoryError with IsNotFound when no account uses the address.
	FindByEmail(ctx context.Context, email string) (domain.Account, error)
	// Update replaces profile fields (name, phone, address, status, role). The wallet balance is
	// only changed through DebitWallet and CreditWallet.
	Update(ctx context.Context, account domain.Account) (domain.Account, error)
	// DebitWallet subtracts amount when the balance covers it. An insufficient balance is reported
	// as a RepositoryError with IsConflict and leaves the balance untouched.
	DebitWallet(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Account, error)
	CreditWallet(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Account, error)
}

// CartRepository persists the full line set of one cart per account.
type CartRepository interface {
	// Get returns an empty cart when the account has none yet.
	Get(ctx context.Context, accountID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	// Update runs a read-modify-write of the cart, atomically where the store supports it.
	Update(ctx context.Context, accountID string, fn func(cart *domain.Cart) error) (domain.Cart, error)
	Clear(ctx context.Context, accountID string) error
}

// ProductRepository reads catalog entries and applies stock decrements.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
	// DecrementStock subtracts quantity when stock covers it; a shortfall is a RepositoryError with
	// IsConflict and the stock is left unchanged.
	DecrementStock(ctx context.Context, productID string, quantity int) (domain.Product, error)
	// SetRating stores the review aggregate. Upsert keeps whatever SetRating last wrote.
	SetRating(ctx context.Context, productID string, average decimal.Decimal, count int) (domain.Product, error)
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	CategoryID string
	Limit      int
}

// OrderRepository persists orders and wallet top-up records.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	FindByProviderIntent(ctx context.Context, intentID string) (domain.Order, error)
	// MarkPaymentCompleted moves the payment status from Pending to Completed as a single
	// conditional update. transitioned is false when the order was already Completed.
	MarkPaymentCompleted(ctx context.Context, orderID string, paidAt time.Time) (order domain.Order, transitioned bool, err error)
	// ReopenPayment moves a Completed payment back to Pending when its completion effects could not
	// be applied. Orders that are not Completed are returned unchanged.
	ReopenPayment(ctx context.Context, orderID string) (domain.Order, error)
	UpdateFulfillmentStatus(ctx context.Context, orderID string, status domain.FulfillmentStatus, updatedAt time.Time) (domain.Order, error)
	ListByAccount(ctx context.Context, accountID string) ([]domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
}

// OrderFilter narrows administrative order listings.
type OrderFilter struct {
	PaymentStatus *domain.PaymentStatus
	Methods       []domain.PaymentMethod
	CreatedBefore *time.Time
	Limit         int
}

// WishlistRepository persists saved products per account.
type WishlistRepository interface {
	Get(ctx context.Context, accountID string) (domain.Wishlist, error)
	Save(ctx context.Context, wishlist domain.Wishlist) (domain.Wishlist, error)
}

// ReviewRepository persists product reviews.
type ReviewRepository interface {
	// Create reports a RepositoryError with IsConflict when the review id is taken.
	Create(ctx context.Context, review domain.Review) (domain.Review, error)
	Get(ctx context.Context, reviewID string) (domain.Review, error)
	List(ctx context.Context, filter ReviewFilter) ([]domain.Review, error)
	// Delete removes the review and returns what was stored.
	Delete(ctx context.Context, reviewID string) (domain.Review, error)
}

// ReviewFilter narrows review listings. An empty ProductID lists every review.
type ReviewFilter struct {
	ProductID string
	Limit     int
}

// CategoryRepository persists catalog categories.
type CategoryRepository interface {
	Get(ctx context.Context, categoryID string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
	Upsert(ctx context.Context, category domain.Category) (domain.Category, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
