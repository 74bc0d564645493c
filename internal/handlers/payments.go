package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

const (
	maxPaymentBodySize = 4 * 1024
	maxWebhookBodySize = 1 << 20
)

// PaymentHandlers exposes payment confirmation, wallet top-ups, provider webhooks and the pending
// payment sweep.
type PaymentHandlers struct {
	authn        *auth.Authenticator
	payments     services.PaymentService
	idempotent   func(http.Handler) http.Handler
	reconcileAge time.Duration
}

// PaymentOption customises payment handlers.
type PaymentOption func(*PaymentHandlers)

// WithPaymentIdempotency applies the middleware to confirm and top-up after authentication.
func WithPaymentIdempotency(mw func(http.Handler) http.Handler) PaymentOption {
	return func(h *PaymentHandlers) {
		h.idempotent = mw
	}
}

// WithReconcileAge sets how old a pending order must be before the sweep looks it up.
func WithReconcileAge(age time.Duration) PaymentOption {
	return func(h *PaymentHandlers) {
		if age > 0 {
			h.reconcileAge = age
		}
	}
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{authn: authn, payments: payments, reconcileAge: 15 * time.Minute}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *PaymentHandlers) authenticated() func(http.Handler) http.Handler {
	if h.authn == nil {
		return nil
	}
	return h.authn.RequireAuth()
}

// PaymentRoutes wires /payments.
func (h *PaymentHandlers) PaymentRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(chain(h.authenticated(), h.idempotent)).Post("/confirm", h.confirmPayment)
}

// WalletRoutes wires /wallet.
func (h *PaymentHandlers) WalletRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(chain(h.authenticated(), h.idempotent)).Post("/top-up", h.topUpWallet)
}

// WebhookRoutes wires /webhooks. Providers authenticate through their own signatures.
func (h *PaymentHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{provider}", h.receiveWebhook)
}

// InternalRoutes wires /internal; the OIDC middleware is applied by the router group.
func (h *PaymentHandlers) InternalRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments:reconcile", h.reconcilePending)
}

type confirmPaymentRequest struct {
	Provider string `json:"provider"`
	IntentID string `json:"intentId"`
}

func (h *PaymentHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req confirmPaymentRequest
	if !decodeBody(w, r, maxPaymentBodySize, &req) {
		return
	}
	result, err := h.payments.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		AccountID: identity.AccountID,
		Provider:  req.Provider,
		IntentID:  req.IntentID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, settlementPayload{
		Order:            buildOrderPayload(result.Order),
		AlreadyCompleted: result.AlreadyCompleted,
	})
}

type topUpRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Provider  string          `json:"provider"`
	ReturnURL string          `json:"returnUrl"`
	CancelURL string          `json:"cancelUrl"`
}

func (h *PaymentHandlers) topUpWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req topUpRequest
	if !decodeBody(w, r, maxPaymentBodySize, &req) {
		return
	}
	result, err := h.payments.TopUpWallet(ctx, services.TopUpCommand{
		AccountID: identity.AccountID,
		Amount:    req.Amount,
		Provider:  req.Provider,
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, orderResponse{
		Order:       buildOrderPayload(result.Order),
		ApprovalURL: result.ApprovalURL,
	})
}

func (h *PaymentHandlers) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	result, err := h.payments.HandleWebhook(ctx, services.WebhookCommand{
		Provider: strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider"))),
		Header:   r.Header.Clone(),
		Body:     body,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := webhookPayload{Received: true, Ignored: result.Ignored}
	if !result.Ignored {
		payload.OrderID = result.Order.ID
		payload.AlreadyCompleted = result.AlreadyCompleted
	}
	httpx.WriteData(w, http.StatusOK, payload)
}

func (h *PaymentHandlers) reconcilePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	age := h.reconcileAge
	if raw := strings.TrimSpace(r.URL.Query().Get("olderThan")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "olderThan must be a non-negative duration such as 15m", http.StatusBadRequest))
			return
		}
		age = parsed
	}
	report, err := h.payments.ReconcilePending(ctx, age)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, reconcilePayload{
		OlderThan: age.String(),
		Scanned:   report.Scanned,
		Settled:   report.Settled,
		Pending:   report.Pending,
		Failures:  report.Failures,
	})
}

type settlementPayload struct {
	Order            orderPayload `json:"order"`
	AlreadyCompleted bool         `json:"alreadyCompleted"`
}

type webhookPayload struct {
	Received         bool   `json:"received"`
	Ignored          bool   `json:"ignored,omitempty"`
	OrderID          string `json:"orderId,omitempty"`
	AlreadyCompleted bool   `json:"alreadyCompleted,omitempty"`
}

type reconcilePayload struct {
	OlderThan string `json:"olderThan"`
	Scanned   int    `json:"scanned"`
	Settled   int    `json:"settled"`
	Pending   int    `json:"pending"`
	Failures  int    `json:"failures"`
}
