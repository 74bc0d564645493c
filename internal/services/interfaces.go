package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Account            = domain.Account
	Product            = domain.Product
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	PricedSnapshot     = domain.PricedSnapshot
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderContact       = domain.OrderContact
	PaymentMethod      = domain.PaymentMethod
	Wishlist           = domain.Wishlist
	Review             = domain.Review
	Category           = domain.Category
	SystemHealthReport = domain.SystemHealthReport
)

// CredentialIssuer signs and verifies shopper credentials.
type CredentialIssuer interface {
	Issue(accountID, role string) (string, error)
	Verify(token string) (*auth.Identity, error)
}

// VerificationIssuer signs and verifies single-purpose email verification tokens.
type VerificationIssuer interface {
	IssueVerification(accountID string) (string, error)
	VerifyVerification(token string) (string, error)
}

// AccountResolver turns an optional credential into an account, creating guests on demand.
type AccountResolver interface {
	Resolve(ctx context.Context, cmd ResolveCommand) (ResolvedAccount, error)
}

// ResolveCommand carries the raw credential from the request.
type ResolveCommand struct {
	Credential string
	AllowGuest bool
}

// ResolvedAccount is the outcome of resolution. Credential is freshly issued when GuestCreated.
type ResolvedAccount struct {
	Account      Account
	Credential   string
	GuestCreated bool
}

// CartService manages the line items of one account's cart.
type CartService interface {
	GetCart(ctx context.Context, accountID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, accountID, productID string) (CartView, error)
	ClearCart(ctx context.Context, accountID string) error
}

// AddCartItemCommand adds quantity of a product to the cart.
type AddCartItemCommand struct {
	AccountID string
	ProductID string
	Quantity  int
}

// UpdateCartItemCommand sets the quantity of an existing line.
type UpdateCartItemCommand struct {
	AccountID string
	ProductID string
	Quantity  int
}

// CartView is the cart with each line resolved against the current catalog.
type CartView struct {
	AccountID string
	Lines     []CartLineView
	Subtotal  decimal.Decimal
	UpdatedAt time.Time
}

// CartLineView is one resolved line. Available is false when the product no longer exists.
type CartLineView struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
	Available bool
}

// Pricer freezes a set of cart lines into a priced snapshot.
type Pricer interface {
	Price(ctx context.Context, lines []CartItem) (PricedSnapshot, error)
}

// OrderService records orders and exposes read projections.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	UpdateFulfillmentStatus(ctx context.Context, cmd UpdateFulfillmentCommand) (Order, error)
	GetOrder(ctx context.Context, viewer Viewer, orderID string) (Order, error)
	ListMyOrders(ctx context.Context, accountID string) ([]Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error)
}

// Viewer identifies who is reading an order.
type Viewer struct {
	AccountID string
	Admin     bool
}

// CreateOrderCommand builds an order from a snapshot. Kind defaults to a purchase.
type CreateOrderCommand struct {
	Snapshot         PricedSnapshot
	Account          Account
	Method           PaymentMethod
	Contact          *OrderContact
	ProviderIntentID string
	Kind             domain.OrderKind
}

// UpdateFulfillmentCommand sets the fulfillment status of an order.
type UpdateFulfillmentCommand struct {
	Actor   Viewer
	OrderID string
	Status  string
}

// OrderListFilter narrows admin listings.
type OrderListFilter struct {
	PaymentStatus string
	Limit         int
}

// StockAdjuster decrements stock for settled order lines.
type StockAdjuster interface {
	Decrement(ctx context.Context, lines []OrderItem)
}

// CheckoutService turns a cart into an order using the selected payment method.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// CheckoutCommand carries the checkout request for one account.
type CheckoutCommand struct {
	AccountID string
	Method    string
	Phone     string
	Address   string
	ReturnURL string
	CancelURL string
}

// CheckoutResult is the order plus, for redirect methods, where the payer approves.
type CheckoutResult struct {
	Order       Order
	ApprovalURL string
}

// PaymentService settles provider-backed orders and wallet top-ups.
type PaymentService interface {
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (SettlementResult, error)
	HandleWebhook(ctx context.Context, cmd WebhookCommand) (SettlementResult, error)
	TopUpWallet(ctx context.Context, cmd TopUpCommand) (TopUpResult, error)
	ReconcilePending(ctx context.Context, olderThan time.Duration) (ReconcileReport, error)
}

// ConfirmPaymentCommand is the client-initiated confirmation after approval.
type ConfirmPaymentCommand struct {
	AccountID string
	Provider  string
	IntentID  string
}

// WebhookCommand is a raw provider notification.
type WebhookCommand struct {
	Provider string
	Header   map[string][]string
	Body     []byte
}

// SettlementResult describes the order after settlement. Ignored is set for webhook events that do
// not concern an intent.
type SettlementResult struct {
	Order            Order
	AlreadyCompleted bool
	Ignored          bool
}

// TopUpCommand requests a wallet top-up through a provider.
type TopUpCommand struct {
	AccountID string
	Amount    decimal.Decimal
	Provider  string
	ReturnURL string
	CancelURL string
}

// TopUpResult is the pending top-up record and the approval link.
type TopUpResult struct {
	Order       Order
	ApprovalURL string
}

// ReconcileReport summarises one sweep over pending orders.
type ReconcileReport struct {
	Scanned  int
	Settled  int
	Pending  int
	Failures int
}

// AuthService registers and authenticates accounts.
type AuthService interface {
	Register(ctx context.Context, cmd RegisterCommand) (RegistrationResult, error)
	Login(ctx context.Context, cmd LoginCommand) (LoginResult, error)
	VerifyEmail(ctx context.Context, token string) (AccountView, error)
	Me(ctx context.Context, accountID string) (AccountView, error)
}

// RegisterCommand creates an account with a password.
type RegisterCommand struct {
	Email    string
	Password string
	Name     string
}

// RegistrationResult is returned by Register. VerificationToken is consumed by the notifying
// decorator and never rendered to clients.
type RegistrationResult struct {
	Account           AccountView
	VerificationToken string
}

// LoginCommand authenticates with email and password.
type LoginCommand struct {
	Email    string
	Password string
}

// LoginResult carries the signed credential.
type LoginResult struct {
	Account    AccountView
	Credential string
}

// AccountView is the account without secrets.
type AccountView struct {
	ID            string
	Email         string
	Name          string
	Phone         string
	Address       string
	Status        domain.AccountStatus
	Role          domain.Role
	WalletBalance decimal.Decimal
	CreatedAt     time.Time
}

// AccountAdminService applies externally driven status changes.
type AccountAdminService interface {
	UpdateStatus(ctx context.Context, accountID, status string) (AccountView, error)
}

// WishlistService manages saved products.
type WishlistService interface {
	List(ctx context.Context, accountID string) ([]Product, error)
	Add(ctx context.Context, accountID, productID string) ([]Product, error)
	Remove(ctx context.Context, accountID, productID string) ([]Product, error)
}

// CatalogService reads and maintains products.
type CatalogService interface {
	ListProducts(ctx context.Context, filter repositories.ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
}

// UpsertProductCommand creates or replaces a product.
type UpsertProductCommand struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	Stock      int
	CategoryID string
}

// ReviewService records product reviews and keeps the product rating in step with them.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	List(ctx context.Context, filter repositories.ReviewFilter) ([]Review, error)
	Get(ctx context.Context, reviewID string) (Review, error)
	Delete(ctx context.Context, actor Viewer, reviewID string) error
}

// CreateReviewCommand is one account's review of one product.
type CreateReviewCommand struct {
	AccountID string
	ProductID string
	Title     string
	Body      string
	Rating    int
}

// CategoryService reads and maintains the categories products reference.
type CategoryService interface {
	List(ctx context.Context) ([]Category, error)
	Get(ctx context.Context, categoryID string) (Category, error)
	Upsert(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
}

// UpsertCategoryCommand creates or renames a category.
type UpsertCategoryCommand struct {
	ID   string
	Name string
	Slug string
}

// SystemService aggregates health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
