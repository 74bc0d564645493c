package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/services"
)

func TestPaymentHandlersConfirm(t *testing.T) {
	var captured services.ConfirmPaymentCommand
	svc := &stubPaymentService{
		confirmFunc: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.SettlementResult, error) {
			captured = cmd
			order := pendingOrder("ord-1", cmd.AccountID, domain.PaymentMethodPayPal)
			order.PaymentStatus = domain.PaymentCompleted
			paid := time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)
			order.PaidAt = &paid
			return services.SettlementResult{Order: order}, nil
		},
	}
	router := chi.NewRouter()
	NewPaymentHandlers(nil, svc).PaymentRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/confirm", bytes.NewBufferString(`{"intentId":"intent-1"}`))
	req = req.WithContext(withIdentity(req.Context(), "acc-1", auth.RoleCustomer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.AccountID != "acc-1" || captured.IntentID != "intent-1" || captured.Provider != "" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var payload settlementPayload
	decodeEnvelope(t, rr, &payload)
	if payload.Order.PaymentStatus != "Completed" || payload.Order.PaidAt == "" || payload.AlreadyCompleted {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestPaymentHandlersConfirmForbidden(t *testing.T) {
	svc := &stubPaymentService{
		confirmFunc: func(context.Context, services.ConfirmPaymentCommand) (services.SettlementResult, error) {
			return services.SettlementResult{}, &services.Error{Kind: services.ErrForbidden, Code: "payment_forbidden", Message: "You don't have permission to confirm this payment"}
		},
	}
	router := chi.NewRouter()
	NewPaymentHandlers(nil, svc).PaymentRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/confirm", bytes.NewBufferString(`{"intentId":"intent-1"}`))
	req = req.WithContext(withIdentity(req.Context(), "acc-2", auth.RoleCustomer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestPaymentHandlersConfirmRequiresCredential(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("handler-test-secret", "storefront")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	router := chi.NewRouter()
	NewPaymentHandlers(auth.NewAuthenticator(issuer), &stubPaymentService{}).PaymentRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/confirm", bytes.NewBufferString(`{"intentId":"x"}`)))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestPaymentHandlersTopUp(t *testing.T) {
	var captured services.TopUpCommand
	svc := &stubPaymentService{
		topUpFunc: func(ctx context.Context, cmd services.TopUpCommand) (services.TopUpResult, error) {
			captured = cmd
			order := pendingOrder("top-1", cmd.AccountID, domain.PaymentMethodStripe)
			order.Kind = domain.OrderKindWalletTopUp
			order.Items = nil
			order.Total = cmd.Amount
			return services.TopUpResult{Order: order, ApprovalURL: "https://stripe.example/session"}, nil
		},
	}
	router := chi.NewRouter()
	NewPaymentHandlers(nil, svc).WalletRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/top-up", bytes.NewBufferString(`{"amount":"25.5","provider":"stripe"}`))
	req = req.WithContext(withIdentity(req.Context(), "acc-1", auth.RoleCustomer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if !captured.Amount.Equal(decimal.RequireFromString("25.5")) || captured.Provider != "stripe" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var payload orderResponse
	decodeEnvelope(t, rr, &payload)
	if payload.Order.Kind != string(domain.OrderKindWalletTopUp) || payload.Order.Total != "25.50" || payload.ApprovalURL == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestPaymentHandlersTopUpAcceptsNumericAmount(t *testing.T) {
	var amount decimal.Decimal
	svc := &stubPaymentService{
		topUpFunc: func(ctx context.Context, cmd services.TopUpCommand) (services.TopUpResult, error) {
			amount = cmd.Amount
			return services.TopUpResult{Order: pendingOrder("top-1", cmd.AccountID, domain.PaymentMethodPayPal)}, nil
		},
	}
	router := chi.NewRouter()
	NewPaymentHandlers(nil, svc).WalletRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/top-up", bytes.NewBufferString(`{"amount":10}`))
	req = req.WithContext(withIdentity(req.Context(), "acc-1", auth.RoleCustomer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated || !amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected amount 10, got %d %s", rr.Code, amount)
	}
}

func TestPaymentHandlersWebhookPassesRawBody(t *testing.T) {
	raw := `{"id":"evt_1","type":"checkout.session.completed"}`
	var captured services.WebhookCommand
	svc := &stubPaymentService{
		webhookFunc: func(ctx context.Context, cmd services.WebhookCommand) (services.SettlementResult, error) {
			captured = cmd
			return services.SettlementResult{Order: services.Order{ID: "ord-1"}, AlreadyCompleted: true}, nil
		},
	}
	router := chi.NewRouter()
	NewPaymentHandlers(nil, svc).WebhookRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/Stripe", bytes.NewBufferString(raw))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Provider != "stripe" || string(captured.Body) != raw {
		t.Fatalf("unexpected webhook command provider=%q body=%q", captured.Provider, captured.Body)
	}
	if got := http.Header(captured.Header).Get("Stripe-Signature"); got != "t=1,v1=abc" {
		t.Fatalf("expected signature header forwarded, got %q", got)
	}
	var payload webhookPayload
	decodeEnvelope(t, rr, &payload)
	if !payload.Received || payload.OrderID != "ord-1" || !payload.AlreadyCompleted {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestPaymentHandlersWebhookIgnoredAndInvalid(t *testing.T) {
	svc := &stubPaymentService{
		webhookFunc: func(ctx context.Context, cmd services.WebhookCommand) (services.SettlementResult, error) {
			if string(cmd.Body) == "bad" {
				return services.SettlementResult{}, &services.Error{Kind: services.ErrBadRequest, Code: "invalid_webhook", Message: "Invalid webhook payload"}
			}
			return services.SettlementResult{Ignored: true}, nil
		},
	}
	router := chi.NewRouter()
	NewPaymentHandlers(nil, svc).WebhookRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/paypal", bytes.NewBufferString(`{"event_type":"OTHER"}`)))
	var payload webhookPayload
	decodeEnvelope(t, rr, &payload)
	if rr.Code != http.StatusOK || !payload.Ignored {
		t.Fatalf("expected ignored event acknowledged, got %d %+v", rr.Code, payload)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/paypal", bytes.NewBufferString("bad")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPaymentHandlersReconcile(t *testing.T) {
	var age time.Duration
	svc := &stubPaymentService{
		reconcileFunc: func(ctx context.Context, olderThan time.Duration) (services.ReconcileReport, error) {
			age = olderThan
			return services.ReconcileReport{Scanned: 3, Settled: 1, Pending: 1, Failures: 1}, nil
		},
	}
	router := chi.NewRouter()
	NewPaymentHandlers(nil, svc, WithReconcileAge(30*time.Minute)).InternalRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments:reconcile", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if age != 30*time.Minute {
		t.Fatalf("expected default age 30m, got %s", age)
	}
	var payload reconcilePayload
	decodeEnvelope(t, rr, &payload)
	if payload.Scanned != 3 || payload.Settled != 1 || payload.Pending != 1 || payload.Failures != 1 {
		t.Fatalf("unexpected report %+v", payload)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments:reconcile?olderThan=5m", nil))
	if rr.Code != http.StatusOK || age != 5*time.Minute {
		t.Fatalf("expected override 5m, got %d %s", rr.Code, age)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments:reconcile?olderThan=soon", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad duration, got %d", rr.Code)
	}
}
