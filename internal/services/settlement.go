package services

import (
	"context"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/repositories"
)

// Outcomes reported to SettlementRecorder.
const (
	SettlementSettled   = "settled"
	SettlementDuplicate = "duplicate"
	SettlementPending   = "pending"
	SettlementFailed    = "failed"
)

// SettlementRecorder counts settlement outcomes per provider.
type SettlementRecorder interface {
	RecordSettlement(provider, outcome string)
}

// paymentGateway abstracts payments.Manager for easier testing.
type paymentGateway interface {
	CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
	Capture(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CaptureRequest) (payments.PaymentDetails, error)
	ParseWebhook(ctx context.Context, provider string, header http.Header, body []byte) (payments.WebhookEvent, error)
	Has(name string) bool
	Names() []string
}

type noopRecorder struct{}

func (noopRecorder) RecordSettlement(string, string) {}

// settler applies the side effects of a payment completing. The conditional status update is the
// gate: only the caller that moves the order from Pending to Completed runs the effects.
type settler struct {
	orders   repositories.OrderRepository
	accounts repositories.AccountRepository
	carts    repositories.CartRepository
	stock    StockAdjuster
	events   EventPublisher
	metrics  SettlementRecorder
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

func (s *settler) complete(ctx context.Context, order Order, provider string) (Order, bool, error) {
	updated, transitioned, err := s.orders.MarkPaymentCompleted(ctx, order.ID, s.now())
	if err != nil {
		s.metrics.RecordSettlement(provider, SettlementFailed)
		if isRepoNotFound(err) {
			return Order{}, false, notFound("order_not_found", "Order not found")
		}
		return Order{}, false, storeError("complete payment", err)
	}
	if !transitioned {
		s.metrics.RecordSettlement(provider, SettlementDuplicate)
		s.logger(ctx, "payment.settlement.duplicate", map[string]any{"orderId": updated.ID})
		return updated, false, nil
	}
	if err := s.apply(ctx, updated, provider); err != nil {
		return Order{}, false, err
	}
	return updated, true, nil
}

// apply runs the effects owed by an order whose payment just became Completed. A top-up whose
// credit fails is reopened to Pending.
func (s *settler) apply(ctx context.Context, order Order, provider string) error {
	switch order.Kind {
	case domain.OrderKindWalletTopUp:
		if _, err := s.accounts.CreditWallet(ctx, order.AccountID, order.Total); err != nil {
			s.metrics.RecordSettlement(provider, SettlementFailed)
			s.logger(ctx, "payment.topup.credit_failed", map[string]any{
				"orderId":   order.ID,
				"accountId": order.AccountID,
				"amount":    order.Total.String(),
				"error":     err.Error(),
			})
			s.reopen(ctx, order)
			return storeError("credit wallet", err)
		}
		s.logger(ctx, "payment.topup.credited", map[string]any{
			"orderId":   order.ID,
			"accountId": order.AccountID,
			"amount":    order.Total.String(),
		})
	default:
		s.stock.Decrement(ctx, order.Items)
		if err := s.carts.Clear(ctx, order.AccountID); err != nil {
			s.logger(ctx, "payment.cart_clear_failed", map[string]any{
				"orderId":   order.ID,
				"accountId": order.AccountID,
				"error":     err.Error(),
			})
		}
	}

	s.metrics.RecordSettlement(provider, SettlementSettled)
	s.publishPaid(ctx, order)
	return nil
}

func (s *settler) reopen(ctx context.Context, order Order) {
	if _, err := s.orders.ReopenPayment(ctx, order.ID); err != nil {
		s.logger(ctx, "payment.reopen_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	s.logger(ctx, "payment.reopened", map[string]any{"orderId": order.ID})
}

func (s *settler) publishPaid(ctx context.Context, order Order) {
	if s.events == nil {
		return
	}
	event := DomainEvent{
		ID:          ulid.Make().String(),
		Type:        EventOrderPaid,
		AggregateID: order.ID,
		OccurredAt:  s.now(),
		Payload: map[string]any{
			"orderId":       order.ID,
			"accountId":     order.AccountID,
			"kind":          string(order.Kind),
			"paymentMethod": string(order.PaymentMethod),
			"total":         order.Total.String(),
			"currency":      order.Currency,
		},
		Attributes: map[string]string{"orderId": order.ID, "kind": string(order.Kind)},
	}
	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}
