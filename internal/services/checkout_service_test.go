package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
)

type stubOrderService struct {
	OrderService
	createFunc func(ctx context.Context, cmd CreateOrderCommand) (Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return s.OrderService.CreateOrder(ctx, cmd)
}

func TestCheckoutWalletSettlesImmediately(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "100")
	f.product("p1", "10", 5)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 2})

	result, err := f.checkout().Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "wallet"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.Order.PaymentStatus != domain.PaymentCompleted {
		t.Fatalf("expected completed payment, got %s", result.Order.PaymentStatus)
	}
	if !result.Order.Total.Equal(dec("20")) {
		t.Fatalf("expected total 20, got %s", result.Order.Total)
	}
	if got := f.balanceOf("acc-1"); !got.Equal(dec("80")) {
		t.Fatalf("expected balance 80, got %s", got)
	}
	if got := f.stockOf("p1"); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	if got := f.cartSize("acc-1"); got != 0 {
		t.Fatalf("expected cart cleared, got %d lines", got)
	}
	if f.events.count(EventOrderPaid) != 1 {
		t.Fatalf("expected one order.paid event")
	}
	if f.metrics.get("wallet", SettlementSettled) != 1 {
		t.Fatalf("expected settled metric")
	}
}

func TestCheckoutWalletInsufficientBalance(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "5")
	f.product("p1", "10", 5)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 1})

	_, err := f.checkout().Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "WALLET"})
	expectKind(t, err, ErrBadRequest, "not enough balance")

	orders, _ := f.registry.Orders().ListByAccount(context.Background(), "acc-1")
	if len(orders) != 0 {
		t.Fatalf("expected no order, got %d", len(orders))
	}
	if got := f.balanceOf("acc-1"); !got.Equal(dec("5")) {
		t.Fatalf("expected balance unchanged, got %s", got)
	}
	if got := f.stockOf("p1"); got != 5 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestCheckoutWalletRefundsWhenOrderFails(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "50")
	f.product("p1", "10", 5)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 1})
	f.orders = &stubOrderService{
		OrderService: f.orders,
		createFunc: func(context.Context, CreateOrderCommand) (Order, error) {
			return Order{}, errors.New("write failed")
		},
	}

	_, err := f.checkout().Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "wallet"})
	expectKind(t, err, ErrInternal, "")
	if got := f.balanceOf("acc-1"); !got.Equal(dec("50")) {
		t.Fatalf("expected refunded balance 50, got %s", got)
	}
	if got := f.cartSize("acc-1"); got != 1 {
		t.Fatalf("expected cart kept, got %d lines", got)
	}
}

func TestCheckoutWalletRecordsPaidOrderWithoutCompletionGate(t *testing.T) {
	f := newShopFixture(t)
	f.orderRepo = failingCompletion{OrderRepository: f.registry.Orders()}
	f.account("acc-1", domain.AccountStatusApproved, "100")
	f.product("p1", "40", 5)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 2})

	result, err := f.checkout().Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "wallet"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	stored, err := f.registry.Orders().Get(context.Background(), result.Order.ID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.PaymentStatus != domain.PaymentCompleted || stored.PaidAt == nil {
		t.Fatalf("expected stored order paid, got %+v", stored)
	}
	if got := f.balanceOf("acc-1"); !got.Equal(dec("20")) {
		t.Fatalf("expected balance 20, got %s", got)
	}
	if got := f.stockOf("p1"); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	if got := f.cartSize("acc-1"); got != 0 {
		t.Fatalf("expected cart cleared, got %d lines", got)
	}
}

func TestCheckoutOrderKeepsPricesAfterProductChange(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "100")
	f.product("p1", "12.50", 5)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 2})

	result, err := f.checkout().Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "wallet"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	f.product("p1", "99", 5)

	stored, err := f.registry.Orders().Get(context.Background(), result.Order.ID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if !stored.Total.Equal(dec("25")) {
		t.Fatalf("expected total 25 after price change, got %s", stored.Total)
	}
	if len(stored.Items) != 1 || !stored.Items[0].UnitPrice.Equal(dec("12.50")) {
		t.Fatalf("expected unit price 12.50 kept, got %+v", stored.Items)
	}
}

func TestCheckoutCashOnDelivery(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "0")
	f.product("p1", "7.50", 4)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 4})

	result, err := f.checkout().Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "COD"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.Order.PaymentMethod != domain.PaymentMethodCOD || result.Order.PaymentStatus != domain.PaymentCompleted {
		t.Fatalf("unexpected order %+v", result.Order)
	}
	if got := f.stockOf("p1"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
	if got := f.cartSize("acc-1"); got != 0 {
		t.Fatalf("expected cart cleared")
	}
}

func TestCheckoutExternalLeavesOrderPending(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "0")
	f.product("p1", "12", 3)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 1})

	result, err := f.checkout().Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "paypal"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.Order.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected pending order, got %s", result.Order.PaymentStatus)
	}
	if result.ApprovalURL == "" || result.Order.ProviderIntentID == "" {
		t.Fatalf("expected approval url and intent id, got %+v", result)
	}
	if got := f.stockOf("p1"); got != 3 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
	if got := f.cartSize("acc-1"); got != 1 {
		t.Fatalf("expected cart kept until payment")
	}
	req := f.gateway.requests[0]
	if !req.Amount.Equal(dec("12")) || req.ReturnURL != "https://shop.test/return" || len(req.Items) != 1 {
		t.Fatalf("unexpected intent request %+v", req)
	}
	if req.IdempotencyKey == "" {
		t.Fatalf("expected idempotency key")
	}
}

func TestCheckoutExternalProviderFailure(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "0")
	f.product("p1", "12", 3)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 1})
	f.gateway.createErr = errors.New("psp down")

	_, err := f.checkout().Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "stripe"})
	expectKind(t, err, ErrInternal, "payment provider error")
	orders, _ := f.registry.Orders().ListByAccount(context.Background(), "acc-1")
	if len(orders) != 0 {
		t.Fatalf("expected no order after provider failure")
	}
}

func TestCheckoutAccountGuards(t *testing.T) {
	cases := []struct {
		name    string
		status  domain.AccountStatus
		cmd     CheckoutCommand
		kind    error
		message string
	}{
		{name: "deleted", status: domain.AccountStatusDeleted, cmd: CheckoutCommand{Method: "cod"}, kind: ErrNotFound, message: "User not found"},
		{name: "restricted", status: domain.AccountStatusRestricted, cmd: CheckoutCommand{Method: "cod"}, kind: ErrForbidden, message: "Your account is restricted"},
		{name: "unverified", status: domain.AccountStatusUnverified, cmd: CheckoutCommand{Method: "cod"}, kind: ErrForbidden, message: "Please verify your email first"},
		{name: "guest without contact", status: domain.AccountStatusGuest, cmd: CheckoutCommand{Method: "cod", Phone: "123"}, kind: ErrBadRequest, message: "Phone and address are required for guest checkout"},
		{name: "unknown method", status: domain.AccountStatusApproved, cmd: CheckoutCommand{Method: "bitcoin"}, kind: ErrBadRequest, message: "Invalid payment method. Supported methods are 'wallet', 'paypal', 'stripe', and 'COD'."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newShopFixture(t)
			f.account("acc-1", tc.status, "100")
			f.product("p1", "10", 5)
			f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 1})
			tc.cmd.AccountID = "acc-1"
			_, err := f.checkout().Checkout(context.Background(), tc.cmd)
			expectKind(t, err, tc.kind, tc.message)
		})
	}
}

func TestCheckoutGuestWithContact(t *testing.T) {
	f := newShopFixture(t)
	f.account("guest-1", domain.AccountStatusGuest, "0")
	f.product("p1", "10", 5)
	f.cart("guest-1", CartItem{ProductID: "p1", Quantity: 1})

	result, err := f.checkout().Checkout(context.Background(), CheckoutCommand{
		AccountID: "guest-1",
		Method:    "cod",
		Phone:     "+1 555 0100",
		Address:   "1 Main St",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.Order.Contact == nil || result.Order.Contact.Address != "1 Main St" {
		t.Fatalf("expected contact on order, got %+v", result.Order.Contact)
	}
}

func TestCheckoutRejectsEmptyCartAndShortStock(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "100")
	svc := f.checkout()

	_, err := svc.Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "cod"})
	expectKind(t, err, ErrBadRequest, "Your cart is empty")

	f.product("p1", "10", 1)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 2})
	_, err = svc.Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "cod"})
	expectKind(t, err, ErrBadRequest, "Product p1 stock is below your order")

	f.cart("acc-1", CartItem{ProductID: "gone", Quantity: 1})
	_, err = svc.Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: "cod"})
	expectKind(t, err, ErrNotFound, "product(gone) not found")
}

func TestCheckoutWithoutGatewayOffersLocalMethods(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "100")
	f.product("p1", "10", 5)
	f.cart("acc-1", CartItem{ProductID: "p1", Quantity: 1})
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Accounts: f.registry.Accounts(),
		Carts:    f.registry.Carts(),
		Orders:   f.registry.Orders(),
		OrderSvc: f.orders,
		Pricer:   f.pricer,
		Stock:    f.stock,
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	_, err = svc.Checkout(context.Background(), CheckoutCommand{AccountID: "acc-1", Method: payments.ProviderPayPal})
	expectKind(t, err, ErrBadRequest, "Invalid payment method. Supported methods are 'wallet' and 'COD'.")
}
