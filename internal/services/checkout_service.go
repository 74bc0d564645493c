package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/repositories"
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Accounts  repositories.AccountRepository
	Carts     repositories.CartRepository
	Orders    repositories.OrderRepository
	OrderSvc  OrderService
	Pricer    Pricer
	Stock     StockAdjuster
	Payments  *payments.Manager
	Events    EventPublisher
	Metrics   SettlementRecorder
	Currency  string
	ReturnURL string
	CancelURL string
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)

	gateway paymentGateway
}

type checkoutService struct {
	accounts  repositories.AccountRepository
	carts     repositories.CartRepository
	orderSvc  OrderService
	pricer    Pricer
	stock     StockAdjuster
	settler   *settler
	gateway   paymentGateway
	currency  string
	returnURL string
	cancelURL string
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies. The payment
// manager is optional; without it only wallet and cash on delivery are offered.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("checkout service: account repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.OrderSvc == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("checkout service: pricer is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("checkout service: stock adjuster is required")
	}
	gateway := deps.gateway
	if gateway == nil && deps.Payments != nil {
		gateway = deps.Payments
	}
	s := newSettler(deps.Orders, deps.Accounts, deps.Carts, deps.Stock, deps.Events, deps.Metrics, deps.Clock, deps.Logger)
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}
	return &checkoutService{
		accounts:  deps.Accounts,
		carts:     deps.Carts,
		orderSvc:  deps.OrderSvc,
		pricer:    deps.Pricer,
		stock:     deps.Stock,
		settler:   s,
		gateway:   gateway,
		currency:  currency,
		returnURL: strings.TrimSpace(deps.ReturnURL),
		cancelURL: strings.TrimSpace(deps.CancelURL),
		now:       s.now,
		logger:    s.logger,
	}, nil
}

func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	account, err := s.accounts.Get(ctx, strings.TrimSpace(cmd.AccountID))
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, notFound("account_not_found", "User not found")
		}
		return CheckoutResult{}, storeError("load account", err)
	}
	contact, err := checkoutContact(account, cmd)
	if err != nil {
		return CheckoutResult{}, err
	}
	method, err := s.parseMethod(cmd.Method)
	if err != nil {
		return CheckoutResult{}, err
	}

	cart, err := s.carts.Get(ctx, account.ID)
	if err != nil {
		return CheckoutResult{}, storeError("load cart", err)
	}
	snapshot, err := s.pricer.Price(ctx, cart.Items)
	if err != nil {
		return CheckoutResult{}, err
	}

	switch method {
	case domain.PaymentMethodWallet:
		return s.checkoutWallet(ctx, account, contact, snapshot)
	case domain.PaymentMethodCOD:
		return s.checkoutCOD(ctx, account, contact, snapshot)
	default:
		return s.checkoutExternal(ctx, account, contact, snapshot, method, cart, cmd)
	}
}

func (s *checkoutService) checkoutWallet(ctx context.Context, account Account, contact *OrderContact, snapshot PricedSnapshot) (CheckoutResult, error) {
	if _, err := s.accounts.DebitWallet(ctx, account.ID, snapshot.Total); err != nil {
		if isRepoConflict(err) {
			return CheckoutResult{}, badRequest("insufficient_balance", "not enough balance")
		}
		if isRepoNotFound(err) {
			return CheckoutResult{}, notFound("account_not_found", "User not found")
		}
		return CheckoutResult{}, storeError("debit wallet", err)
	}
	s.logger(ctx, "checkout.wallet.debited", map[string]any{
		"accountId": account.ID,
		"amount":    snapshot.Total.String(),
	})

	order, err := s.orderSvc.CreateOrder(ctx, CreateOrderCommand{
		Snapshot: snapshot,
		Account:  account,
		Method:   domain.PaymentMethodWallet,
		Contact:  contact,
	})
	if err != nil {
		s.refund(ctx, account.ID, snapshot, err)
		return CheckoutResult{}, internal("order_create_failed", "order could not be created", err)
	}

	// The order is recorded Completed, so once it exists the debit is accounted for.
	if err := s.settler.apply(ctx, order, string(domain.PaymentMethodWallet)); err != nil {
		return CheckoutResult{}, err
	}
	return CheckoutResult{Order: order}, nil
}

func (s *checkoutService) refund(ctx context.Context, accountID string, snapshot PricedSnapshot, cause error) {
	fields := map[string]any{
		"accountId": accountID,
		"amount":    snapshot.Total.String(),
		"cause":     cause.Error(),
	}
	if _, err := s.accounts.CreditWallet(ctx, accountID, snapshot.Total); err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "checkout.wallet.refund_failed", fields)
		return
	}
	s.logger(ctx, "checkout.wallet.refunded", fields)
}

func (s *checkoutService) checkoutCOD(ctx context.Context, account Account, contact *OrderContact, snapshot PricedSnapshot) (CheckoutResult, error) {
	order, err := s.orderSvc.CreateOrder(ctx, CreateOrderCommand{
		Snapshot: snapshot,
		Account:  account,
		Method:   domain.PaymentMethodCOD,
		Contact:  contact,
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	s.stock.Decrement(ctx, order.Items)
	if err := s.carts.Clear(ctx, account.ID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"orderId":   order.ID,
			"accountId": account.ID,
			"error":     err.Error(),
		})
	}
	return CheckoutResult{Order: order}, nil
}

func (s *checkoutService) checkoutExternal(ctx context.Context, account Account, contact *OrderContact, snapshot PricedSnapshot, method PaymentMethod, cart Cart, cmd CheckoutCommand) (CheckoutResult, error) {
	provider := string(method)
	key := checkoutIdempotencyKey(provider, cart, snapshot)
	items := make([]payments.LineItem, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		items = append(items, payments.LineItem{
			Name:      line.Name,
			SKU:       line.ProductID,
			Quantity:  int64(line.Quantity),
			UnitPrice: line.UnitPrice,
		})
	}
	intent, err := s.gateway.CreateIntent(ctx, payments.PaymentContext{PreferredProvider: provider, Currency: s.currency}, payments.IntentRequest{
		Amount:         snapshot.Total,
		Currency:       s.currency,
		Reference:      key,
		Description:    fmt.Sprintf("Order for %d item(s)", len(snapshot.Lines)),
		ReturnURL:      firstNonEmpty(cmd.ReturnURL, s.returnURL),
		CancelURL:      firstNonEmpty(cmd.CancelURL, s.cancelURL),
		IdempotencyKey: key,
		Metadata:       map[string]string{"accountId": account.ID},
		Items:          items,
	})
	if err != nil {
		s.logger(ctx, "checkout.intent.failed", map[string]any{
			"accountId": account.ID,
			"provider":  provider,
			"error":     err.Error(),
		})
		return CheckoutResult{}, internal("payment_provider_error", "payment provider error", err)
	}

	order, err := s.orderSvc.CreateOrder(ctx, CreateOrderCommand{
		Snapshot:         snapshot,
		Account:          account,
		Method:           method,
		Contact:          contact,
		ProviderIntentID: intent.ID,
	})
	if err != nil {
		if !isRepoConflict(err) {
			return CheckoutResult{}, err
		}
		// The provider deduplicated the intent; hand back the order already recorded for it.
		existing, findErr := s.settler.orders.FindByProviderIntent(ctx, intent.ID)
		if findErr != nil || existing.AccountID != account.ID {
			return CheckoutResult{}, err
		}
		return CheckoutResult{Order: existing, ApprovalURL: intent.ApprovalURL}, nil
	}
	s.logger(ctx, "checkout.intent.created", map[string]any{
		"orderId":  order.ID,
		"provider": provider,
		"intentId": intent.ID,
	})
	return CheckoutResult{Order: order, ApprovalURL: intent.ApprovalURL}, nil
}

func (s *checkoutService) parseMethod(raw string) (PaymentMethod, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case string(domain.PaymentMethodWallet):
		return domain.PaymentMethodWallet, nil
	case string(domain.PaymentMethodCOD):
		return domain.PaymentMethodCOD, nil
	}
	if value != "" && s.gateway != nil && s.gateway.Has(value) {
		return PaymentMethod(value), nil
	}
	return "", badRequest("invalid_payment_method", s.supportedMethodsMessage())
}

func (s *checkoutService) supportedMethodsMessage() string {
	names := []string{"'wallet'"}
	if s.gateway != nil {
		for _, name := range s.gateway.Names() {
			names = append(names, "'"+name+"'")
		}
	}
	names = append(names, "'COD'")
	var list string
	if len(names) == 2 {
		list = names[0] + " and " + names[1]
	} else {
		list = strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
	return "Invalid payment method. Supported methods are " + list + "."
}

func checkoutContact(account Account, cmd CheckoutCommand) (*OrderContact, error) {
	switch account.Status {
	case domain.AccountStatusDeleted:
		return nil, notFound("account_not_found", "User not found")
	case domain.AccountStatusRestricted:
		return nil, forbidden("account_restricted", "Your account is restricted")
	case domain.AccountStatusUnverified:
		return nil, forbidden("account_unverified", "Please verify your email first")
	}
	phone := strings.TrimSpace(cmd.Phone)
	address := strings.TrimSpace(cmd.Address)
	if account.IsGuest() {
		if phone == "" || address == "" {
			return nil, badRequest("contact_required", "Phone and address are required for guest checkout")
		}
		return &OrderContact{Phone: phone, Address: address}, nil
	}
	phone = firstNonEmpty(phone, account.Phone)
	address = firstNonEmpty(address, account.Address)
	if phone == "" && address == "" {
		return nil, nil
	}
	return &OrderContact{Phone: phone, Address: address}, nil
}

// checkoutIdempotencyKey is stable for a given cart revision so provider retries reuse one intent.
func checkoutIdempotencyKey(provider string, cart Cart, snapshot PricedSnapshot) string {
	base := fmt.Sprintf("%s|%s|%s|%s", provider, cart.AccountID, cart.UpdatedAt.UTC().Format(time.RFC3339Nano), snapshot.Total.String())
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}
