package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

const maxAdminBodySize = 16 * 1024

// AdminHandlers exposes order fulfillment, account status, catalog and review moderation to admins.
type AdminHandlers struct {
	authn      *auth.Authenticator
	orders     services.OrderService
	accounts   services.AccountAdminService
	catalog    services.CatalogService
	categories services.CategoryService
	reviews    services.ReviewService
}

// AdminServices groups the services reachable from the admin routes. Nil members answer 503.
type AdminServices struct {
	Orders     services.OrderService
	Accounts   services.AccountAdminService
	Catalog    services.CatalogService
	Categories services.CategoryService
	Reviews    services.ReviewService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, svc AdminServices) *AdminHandlers {
	return &AdminHandlers{
		authn:      authn,
		orders:     svc.Orders,
		accounts:   svc.Accounts,
		catalog:    svc.Catalog,
		categories: svc.Categories,
		reviews:    svc.Reviews,
	}
}

// Routes registers admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Patch("/orders/{orderId}/status", h.updateOrderStatus)
	r.Patch("/accounts/{accountId}/status", h.updateAccountStatus)
	r.Put("/products/{productId}", h.upsertProduct)
	r.Put("/categories/{categoryId}", h.upsertCategory)
	r.Delete("/reviews/{reviewId}", h.deleteReview)
}

type statusRequest struct {
	Status string `json:"status"`
}

type productRequest struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	CategoryID string          `json:"categoryId"`
}

type categoryRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	filter := services.OrderListFilter{PaymentStatus: strings.TrimSpace(r.URL.Query().Get("paymentStatus"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		filter.Limit = limit
	}
	orders, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, orderListPayload{Orders: buildOrderPayloads(orders)})
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	order, err := h.orders.UpdateFulfillmentStatus(ctx, services.UpdateFulfillmentCommand{
		Actor:   services.Viewer{AccountID: identity.AccountID, Admin: identity.IsAdmin()},
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
		Status:  req.Status,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) updateAccountStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		serviceUnavailable(ctx, w, "account")
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	account, err := h.accounts.UpdateStatus(ctx, strings.TrimSpace(chi.URLParam(r, "accountId")), req.Status)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

func (h *AdminHandlers) upsertProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	var req productRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	product, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{
		ID:         strings.TrimSpace(chi.URLParam(r, "productId")),
		Name:       req.Name,
		Price:      req.Price,
		Stock:      req.Stock,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) upsertCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		serviceUnavailable(ctx, w, "category")
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	var req categoryRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	category, err := h.categories.Upsert(ctx, services.UpsertCategoryCommand{
		ID:   strings.TrimSpace(chi.URLParam(r, "categoryId")),
		Name: req.Name,
		Slug: req.Slug,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *AdminHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	actor := services.Viewer{AccountID: identity.AccountID, Admin: identity.IsAdmin()}
	if err := h.reviews.Delete(ctx, actor, strings.TrimSpace(chi.URLParam(r, "reviewId"))); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
