package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/repositories"
)

const (
	defaultReconcileBatch = 100
	defaultConfirmSource  = payments.ProviderPayPal
)

// PaymentServiceDeps wires the dependencies required by the payment service.
type PaymentServiceDeps struct {
	Orders   repositories.OrderRepository
	Accounts repositories.AccountRepository
	Carts    repositories.CartRepository
	OrderSvc OrderService
	Stock    StockAdjuster
	Payments *payments.Manager
	Events   EventPublisher
	Metrics  SettlementRecorder
	Currency string
	// MaxTopUp caps a single wallet top-up. Zero disables the cap.
	MaxTopUp  decimal.Decimal
	ReturnURL string
	CancelURL string
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)

	gateway paymentGateway
}

type paymentService struct {
	settler   *settler
	orders    repositories.OrderRepository
	accounts  repositories.AccountRepository
	orderSvc  OrderService
	gateway   paymentGateway
	currency  string
	maxTopUp  decimal.Decimal
	returnURL string
	cancelURL string
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("payment service: account repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("payment service: cart repository is required")
	}
	if deps.OrderSvc == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("payment service: stock adjuster is required")
	}
	gateway := deps.gateway
	if gateway == nil && deps.Payments != nil {
		gateway = deps.Payments
	}
	if gateway == nil {
		return nil, errors.New("payment service: payment manager is required")
	}
	s := newSettler(deps.Orders, deps.Accounts, deps.Carts, deps.Stock, deps.Events, deps.Metrics, deps.Clock, deps.Logger)
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}
	return &paymentService{
		settler:   s,
		orders:    deps.Orders,
		accounts:  deps.Accounts,
		orderSvc:  deps.OrderSvc,
		gateway:   gateway,
		currency:  currency,
		maxTopUp:  deps.MaxTopUp,
		returnURL: strings.TrimSpace(deps.ReturnURL),
		cancelURL: strings.TrimSpace(deps.CancelURL),
		now:       s.now,
		logger:    s.logger,
	}, nil
}

func newSettler(
	orders repositories.OrderRepository,
	accounts repositories.AccountRepository,
	carts repositories.CartRepository,
	stock StockAdjuster,
	events EventPublisher,
	metrics SettlementRecorder,
	clock func() time.Time,
	logger func(ctx context.Context, event string, fields map[string]any),
) *settler {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &settler{
		orders:   orders,
		accounts: accounts,
		carts:    carts,
		stock:    stock,
		events:   events,
		metrics:  metrics,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}
}

func (s *paymentService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (SettlementResult, error) {
	intentID := strings.TrimSpace(cmd.IntentID)
	if intentID == "" {
		return SettlementResult{}, badRequest("intent_required", "Please provide the payment intent id")
	}
	provider := strings.ToLower(strings.TrimSpace(cmd.Provider))
	if provider == "" {
		provider = defaultConfirmSource
	}
	if !s.gateway.Has(provider) {
		return SettlementResult{}, badRequest("unsupported_provider", "Unsupported payment provider")
	}

	order, err := s.orders.FindByProviderIntent(ctx, intentID)
	if err != nil {
		if isRepoNotFound(err) {
			return SettlementResult{}, notFound("order_not_found", "Order not found")
		}
		return SettlementResult{}, storeError("find order by intent", err)
	}
	if accountID := strings.TrimSpace(cmd.AccountID); accountID != "" && order.AccountID != accountID {
		return SettlementResult{}, forbidden("order_forbidden", "You don't have permission to confirm this payment")
	}
	if string(order.PaymentMethod) != provider {
		return SettlementResult{}, badRequest("provider_mismatch", "Payment was not created with this provider")
	}
	return s.settle(ctx, order)
}

func (s *paymentService) HandleWebhook(ctx context.Context, cmd WebhookCommand) (SettlementResult, error) {
	provider := strings.ToLower(strings.TrimSpace(cmd.Provider))
	if !s.gateway.Has(provider) {
		return SettlementResult{}, notFound("unsupported_provider", "Unsupported payment provider")
	}
	event, err := s.gateway.ParseWebhook(ctx, provider, http.Header(cmd.Header), cmd.Body)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidWebhook) {
			s.logger(ctx, "payment.webhook.rejected", map[string]any{"provider": provider, "error": err.Error()})
			return SettlementResult{}, badRequest("invalid_webhook", "Invalid webhook payload")
		}
		return SettlementResult{}, internal("payment_provider_error", "payment provider error", err)
	}
	if !event.Relevant || strings.TrimSpace(event.IntentID) == "" {
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"provider":  provider,
			"eventId":   event.ID,
			"eventType": event.Type,
		})
		return SettlementResult{Ignored: true}, nil
	}

	order, err := s.orders.FindByProviderIntent(ctx, event.IntentID)
	if err != nil {
		if isRepoNotFound(err) {
			return SettlementResult{}, notFound("order_not_found", "Order not found")
		}
		return SettlementResult{}, storeError("find order by intent", err)
	}
	s.logger(ctx, "payment.webhook.received", map[string]any{
		"provider":  provider,
		"eventId":   event.ID,
		"eventType": event.Type,
		"orderId":   order.ID,
	})
	return s.settle(ctx, order)
}

// settle confirms a provider-backed order with the provider and applies the completion effects.
func (s *paymentService) settle(ctx context.Context, order Order) (SettlementResult, error) {
	provider := string(order.PaymentMethod)
	if order.PaymentStatus == domain.PaymentCompleted {
		s.settler.metrics.RecordSettlement(provider, SettlementDuplicate)
		return SettlementResult{Order: order, AlreadyCompleted: true}, nil
	}
	if !order.PaymentMethod.External() || order.ProviderIntentID == "" {
		return SettlementResult{}, badRequest("not_provider_backed", "Order is not paid through a payment provider")
	}

	paymentCtx := payments.PaymentContext{PreferredProvider: provider, Currency: order.Currency}
	details, err := s.gateway.LookupPayment(ctx, paymentCtx, payments.LookupRequest{IntentID: order.ProviderIntentID})
	if err != nil {
		s.settler.metrics.RecordSettlement(provider, SettlementFailed)
		return SettlementResult{}, internal("payment_provider_error", "payment provider error", err)
	}
	if details.Status == payments.StatusApproved {
		details, err = s.gateway.Capture(ctx, paymentCtx, payments.CaptureRequest{
			IntentID:       order.ProviderIntentID,
			IdempotencyKey: "capture-" + order.ID,
		})
		if err != nil {
			s.settler.metrics.RecordSettlement(provider, SettlementFailed)
			return SettlementResult{}, internal("payment_provider_error", "payment provider error", err)
		}
	}
	if details.Status != payments.StatusSucceeded {
		s.settler.metrics.RecordSettlement(provider, SettlementPending)
		s.logger(ctx, "payment.not_approved", map[string]any{
			"orderId":  order.ID,
			"provider": provider,
			"status":   string(details.Status),
		})
		return SettlementResult{}, badRequest("payment_not_approved", "Payment not approved")
	}
	if !details.Amount.IsZero() && !details.Amount.Equal(order.Total) {
		s.settler.metrics.RecordSettlement(provider, SettlementFailed)
		s.logger(ctx, "payment.amount_mismatch", map[string]any{
			"orderId":  order.ID,
			"provider": provider,
			"expected": order.Total.String(),
			"captured": details.Amount.String(),
		})
		return SettlementResult{}, badRequest("payment_amount_mismatch", "Captured amount does not match the order total")
	}
	if currency := strings.TrimSpace(details.Currency); currency != "" && !strings.EqualFold(currency, order.Currency) {
		s.settler.metrics.RecordSettlement(provider, SettlementFailed)
		s.logger(ctx, "payment.currency_mismatch", map[string]any{
			"orderId":  order.ID,
			"provider": provider,
			"expected": order.Currency,
			"captured": currency,
		})
		return SettlementResult{}, badRequest("payment_currency_mismatch", "Captured currency does not match the order currency")
	}

	updated, transitioned, err := s.settler.complete(ctx, order, provider)
	if err != nil {
		return SettlementResult{}, err
	}
	return SettlementResult{Order: updated, AlreadyCompleted: !transitioned}, nil
}

func (s *paymentService) TopUpWallet(ctx context.Context, cmd TopUpCommand) (TopUpResult, error) {
	account, err := s.accounts.Get(ctx, strings.TrimSpace(cmd.AccountID))
	if err != nil {
		if isRepoNotFound(err) {
			return TopUpResult{}, notFound("account_not_found", "User not found")
		}
		return TopUpResult{}, storeError("load account", err)
	}
	switch account.Status {
	case domain.AccountStatusDeleted:
		return TopUpResult{}, notFound("account_not_found", "User not found")
	case domain.AccountStatusGuest:
		return TopUpResult{}, forbidden("guest_wallet", "Please register to use the wallet")
	case domain.AccountStatusRestricted:
		return TopUpResult{}, forbidden("account_restricted", "Your account is restricted")
	}

	amount := cmd.Amount.Round(2)
	if !amount.IsPositive() {
		return TopUpResult{}, badRequest("invalid_amount", "Amount must be greater than zero")
	}
	if s.maxTopUp.IsPositive() && amount.GreaterThan(s.maxTopUp) {
		return TopUpResult{}, badRequest("amount_too_large", "Amount must not exceed "+s.maxTopUp.StringFixed(2))
	}

	provider := strings.ToLower(strings.TrimSpace(cmd.Provider))
	if provider == "" {
		provider = defaultConfirmSource
	}
	if !s.gateway.Has(provider) {
		return TopUpResult{}, badRequest("unsupported_provider", "Unsupported payment provider")
	}

	reference := ulid.Make().String()
	intent, err := s.gateway.CreateIntent(ctx, payments.PaymentContext{PreferredProvider: provider, Currency: s.currency}, payments.IntentRequest{
		Amount:         amount,
		Currency:       s.currency,
		Reference:      reference,
		Description:    "Wallet top-up",
		ReturnURL:      firstNonEmpty(cmd.ReturnURL, s.returnURL),
		CancelURL:      firstNonEmpty(cmd.CancelURL, s.cancelURL),
		IdempotencyKey: "topup-" + reference,
		Metadata:       map[string]string{"accountId": account.ID, "kind": string(domain.OrderKindWalletTopUp)},
	})
	if err != nil {
		return TopUpResult{}, internal("payment_provider_error", "payment provider error", err)
	}

	order, err := s.orderSvc.CreateOrder(ctx, CreateOrderCommand{
		Snapshot:         PricedSnapshot{Total: amount},
		Account:          account,
		Method:           domain.PaymentMethod(provider),
		ProviderIntentID: intent.ID,
		Kind:             domain.OrderKindWalletTopUp,
	})
	if err != nil {
		return TopUpResult{}, err
	}
	s.logger(ctx, "payment.topup.created", map[string]any{
		"orderId":   order.ID,
		"accountId": account.ID,
		"provider":  provider,
		"amount":    amount.String(),
	})
	return TopUpResult{Order: order, ApprovalURL: intent.ApprovalURL}, nil
}

func (s *paymentService) ReconcilePending(ctx context.Context, olderThan time.Duration) (ReconcileReport, error) {
	if olderThan < 0 {
		olderThan = 0
	}
	status := domain.PaymentPending
	cutoff := s.now().Add(-olderThan)
	pending, err := s.orders.List(ctx, repositories.OrderFilter{
		PaymentStatus: &status,
		Methods:       []domain.PaymentMethod{domain.PaymentMethodPayPal, domain.PaymentMethodStripe},
		CreatedBefore: &cutoff,
		Limit:         defaultReconcileBatch,
	})
	if err != nil {
		return ReconcileReport{}, storeError("list pending orders", err)
	}

	var report ReconcileReport
	for _, order := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		if !s.gateway.Has(string(order.PaymentMethod)) {
			report.Pending++
			continue
		}
		result, err := s.settle(ctx, order)
		switch {
		case err == nil && !result.AlreadyCompleted:
			report.Settled++
		case err == nil:
			report.Pending++
		case errors.Is(err, ErrBadRequest):
			report.Pending++
		default:
			report.Failures++
			s.logger(ctx, "payment.reconcile.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		}
	}
	s.logger(ctx, "payment.reconcile.completed", map[string]any{
		"scanned":  report.Scanned,
		"settled":  report.Settled,
		"pending":  report.Pending,
		"failures": report.Failures,
	})
	return report, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
