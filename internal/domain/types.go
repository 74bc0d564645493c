package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus captures the lifecycle state of an account.
type AccountStatus string

const (
	// AccountStatusUnverified marks a registered account whose email has not been confirmed.
	AccountStatusUnverified AccountStatus = "Unverified"
	// AccountStatusApproved marks a registered account in good standing.
	AccountStatusApproved AccountStatus = "Approved"
	// AccountStatusRestricted marks an account an administrator has restricted.
	AccountStatusRestricted AccountStatus = "Restricted"
	// AccountStatusDeleted marks a soft-deleted account.
	AccountStatusDeleted AccountStatus = "Deleted"
	// AccountStatusGuest marks an account created implicitly for anonymous shoppers.
	AccountStatusGuest AccountStatus = "Guest"
)

// Valid reports whether the status is one of the known values.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusUnverified, AccountStatusApproved, AccountStatusRestricted, AccountStatusDeleted, AccountStatusGuest:
		return true
	}
	return false
}

// ParseAccountStatus matches the supplied value case-insensitively.
func ParseAccountStatus(value string) (AccountStatus, bool) {
	for _, candidate := range []AccountStatus{
		AccountStatusUnverified,
		AccountStatusApproved,
		AccountStatusRestricted,
		AccountStatusDeleted,
		AccountStatusGuest,
	} {
		if strings.EqualFold(strings.TrimSpace(value), string(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// Role enumerates authorisation roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Account is a registered user or an implicitly created guest.
type Account struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	Address      string
	PasswordHash string
	Status       AccountStatus
	Role         Role
	// WalletBalance is never negative.
	WalletBalance decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsGuest reports whether the account was created without credentials.
func (a Account) IsGuest() bool {
	return a.Status == AccountStatusGuest
}

// Product is the catalog entity read by the cart and checkout flows.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	Stock      int
	CategoryID string
	// RatingsAverage and RatingsCount are maintained from reviews, not by catalog upserts.
	RatingsAverage decimal.Decimal
	RatingsCount   int
	UpdatedAt      time.Time
}

// Category groups products in the catalog.
type Category struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Review rates a product. An account reviews a product at most once.
type Review struct {
	ID         string
	ProductID  string
	AccountID  string
	AuthorName string
	Title      string
	Body       string
	Rating     int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReviewID is the identifier of the review an account writes for a product.
func ReviewID(productID, accountID string) string {
	return productID + "_" + accountID
}

// CartItem references a product and the requested quantity.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Cart belongs to exactly one account.
type Cart struct {
	AccountID string
	Items     []CartItem
	UpdatedAt time.Time
}

// Line returns the index of the line for the product, or -1.
func (c Cart) Line(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// PricedLine is a cart line resolved against the catalog at checkout time.
type PricedLine struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal returns unit price multiplied by quantity.
func (l PricedLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// PricedSnapshot freezes prices and verified availability for order creation.
type PricedSnapshot struct {
	Lines []PricedLine
	Total decimal.Decimal
}

// FulfillmentStatus tracks delivery progress for an order.
type FulfillmentStatus string

const (
	FulfillmentPending   FulfillmentStatus = "Pending"
	FulfillmentShipped   FulfillmentStatus = "Shipped"
	FulfillmentDelivered FulfillmentStatus = "Delivered"
)

// ParseFulfillmentStatus matches the supplied value case-insensitively.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, bool) {
	for _, candidate := range []FulfillmentStatus{FulfillmentPending, FulfillmentShipped, FulfillmentDelivered} {
		if strings.EqualFold(strings.TrimSpace(value), string(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// PaymentStatus moves one way from Pending to Completed.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
)

// PaymentMethod tags how an order is paid.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodPayPal PaymentMethod = "paypal"
	PaymentMethodStripe PaymentMethod = "stripe"
)

// External reports whether the method settles through a redirect-style provider.
func (m PaymentMethod) External() bool {
	return m == PaymentMethodPayPal || m == PaymentMethodStripe
}

// OrderKind distinguishes purchases from wallet top-ups.
type OrderKind string

const (
	OrderKindPurchase    OrderKind = "order"
	OrderKindWalletTopUp OrderKind = "walletCharge"
)

// OrderItem holds the unit price captured when the order was created.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// OrderContact stores guest contact details supplied at checkout.
type OrderContact struct {
	Phone   string
	Address string
}

// Order is immutable after creation except for the two status fields.
type Order struct {
	ID                string
	AccountID         string
	Kind              OrderKind
	Items             []OrderItem
	Total             decimal.Decimal
	Currency          string
	FulfillmentStatus FulfillmentStatus
	PaymentStatus     PaymentStatus
	PaymentMethod     PaymentMethod
	ProviderIntentID  string
	Contact           *OrderContact
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
}

// ItemsTotal sums the captured line totals.
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Wishlist lists product ids an account saved for later.
type Wishlist struct {
	AccountID  string
	ProductIDs []string
	UpdatedAt  time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
