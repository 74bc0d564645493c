package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

// CheckoutHandlers turns the resolved account's cart into an order.
type CheckoutHandlers struct {
	resolver   services.AccountResolver
	checkout   services.CheckoutService
	idempotent func(http.Handler) http.Handler
}

const maxCheckoutBodySize = 8 * 1024

// NewCheckoutHandlers constructs checkout handlers. idempotent, when set, runs after account
// resolution so replayed keys are scoped to the shopper.
func NewCheckoutHandlers(resolver services.AccountResolver, checkout services.CheckoutService, idempotent func(http.Handler) http.Handler) *CheckoutHandlers {
	return &CheckoutHandlers{resolver: resolver, checkout: checkout, idempotent: idempotent}
}

// Routes wires the /checkout endpoint onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(chain(resolveAccount(h.resolver, true), h.idempotent)).Post("/", h.createCheckout)
}

type checkoutRequest struct {
	PaymentMethod string `json:"paymentMethod"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	ReturnURL     string `json:"returnUrl"`
	CancelURL     string `json:"cancelUrl"`
}

func (h *CheckoutHandlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	result, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		AccountID: identity.AccountID,
		Method:    req.PaymentMethod,
		Phone:     req.Phone,
		Address:   req.Address,
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	guestCreated := identity.GuestCreated
	noStore(w)
	httpx.WriteData(w, http.StatusCreated, orderResponse{
		Order:          buildOrderPayload(result.Order),
		ApprovalURL:    result.ApprovalURL,
		Token:          identity.Credential,
		IsGuestCreated: &guestCreated,
	})
}
