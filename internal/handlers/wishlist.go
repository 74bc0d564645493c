package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

// WishlistHandlers exposes the authenticated shopper's saved products.
type WishlistHandlers struct {
	authn     *auth.Authenticator
	wishlists services.WishlistService
}

// NewWishlistHandlers constructs wishlist handlers.
func NewWishlistHandlers(authn *auth.Authenticator, wishlists services.WishlistService) *WishlistHandlers {
	return &WishlistHandlers{authn: authn, wishlists: wishlists}
}

// Routes wires the /wishlist endpoints onto the provided router.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.list)
	r.Post("/", h.add)
	r.Delete("/{productId}", h.remove)
}

type wishlistAddRequest struct {
	ProductID string `json:"productId"`
}

func (h *WishlistHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		serviceUnavailable(ctx, w, "wishlist")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	products, err := h.wishlists.List(ctx, identity.AccountID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, productListPayload{Products: buildProductPayloads(products)})
}

func (h *WishlistHandlers) add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		serviceUnavailable(ctx, w, "wishlist")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req wishlistAddRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	products, err := h.wishlists.Add(ctx, identity.AccountID, strings.TrimSpace(req.ProductID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, productListPayload{Products: buildProductPayloads(products)})
}

func (h *WishlistHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		serviceUnavailable(ctx, w, "wishlist")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	products, err := h.wishlists.Remove(ctx, identity.AccountID, strings.TrimSpace(chi.URLParam(r, "productId")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, productListPayload{Products: buildProductPayloads(products)})
}
