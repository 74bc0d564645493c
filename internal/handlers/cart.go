package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

// CartHandlers exposes the cart of the resolved account. Anonymous shoppers get a guest account on
// their first read or add.
type CartHandlers struct {
	resolver services.AccountResolver
	carts    services.CartService
}

const maxCartBodySize = 4 * 1024

// NewCartHandlers constructs cart handlers. A nil resolver expects the identity to already be on
// the request context.
func NewCartHandlers(resolver services.AccountResolver, carts services.CartService) *CartHandlers {
	return &CartHandlers{resolver: resolver, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(resolveAccount(h.resolver, true)).Get("/", h.getCart)
	r.With(resolveAccount(h.resolver, true)).Post("/", h.addItem)
	r.With(resolveAccount(h.resolver, false)).Delete("/", h.clearCart)
	r.With(resolveAccount(h.resolver, false)).Patch("/{productId}", h.updateItem)
	r.With(resolveAccount(h.resolver, false)).Delete("/{productId}", h.removeItem)
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(ctx, identity.AccountID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, identity, cart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", "quantity must be a positive number", http.StatusBadRequest))
		return
	}
	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		AccountID: identity.AccountID,
		ProductID: strings.TrimSpace(req.ProductID),
		Quantity:  *req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, identity, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	cart, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		AccountID: identity.AccountID,
		ProductID: strings.TrimSpace(chi.URLParam(r, "productId")),
		Quantity:  *req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, identity, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(ctx, identity.AccountID, strings.TrimSpace(chi.URLParam(r, "productId")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, identity, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if err := h.carts.ClearCart(ctx, identity.AccountID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cartPayload struct {
	AccountID      string            `json:"accountId"`
	Items          []cartLinePayload `json:"items"`
	ItemsCount     int               `json:"itemsCount"`
	Subtotal       string            `json:"subtotal"`
	UpdatedAt      string            `json:"updatedAt,omitempty"`
	Token          string            `json:"token,omitempty"`
	IsGuestCreated bool              `json:"isGuestCreated"`
}

type cartLinePayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"lineTotal"`
	Available bool   `json:"available"`
}

func writeCart(w http.ResponseWriter, identity *auth.Identity, cart services.CartView) {
	noStore(w)
	payload := buildCartPayload(cart)
	payload.Token, payload.IsGuestCreated = identity.Credential, identity.GuestCreated
	httpx.WriteData(w, http.StatusOK, payload)
}

func buildCartPayload(cart services.CartView) cartPayload {
	lines := make([]cartLinePayload, 0, len(cart.Lines))
	count := 0
	for _, line := range cart.Lines {
		count += line.Quantity
		lines = append(lines, cartLinePayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: formatMoney(line.UnitPrice),
			Quantity:  line.Quantity,
			LineTotal: formatMoney(line.LineTotal),
			Available: line.Available,
		})
	}
	return cartPayload{
		AccountID:  cart.AccountID,
		Items:      lines,
		ItemsCount: count,
		Subtotal:   formatMoney(cart.Subtotal),
		UpdatedAt:  formatTime(cart.UpdatedAt),
	}
}
