package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/services"
)

// ProductHandlers exposes public catalog reads.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs product handlers.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes wires the /products endpoints onto the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productId}", h.getProduct)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	filter := repositories.ProductFilter{CategoryID: strings.TrimSpace(r.URL.Query().Get("category"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		filter.Limit = limit
	}
	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, productListPayload{Products: buildProductPayloads(products)})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.GetProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productId")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListPayload struct {
	Products []productPayload `json:"products"`
}

type productPayload struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Price          string `json:"price"`
	Stock          int    `json:"stock"`
	InStock        bool   `json:"inStock"`
	CategoryID     string `json:"categoryId,omitempty"`
	RatingsAverage string `json:"ratingsAverage"`
	RatingsCount   int    `json:"ratingsCount"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

func buildProductPayloads(products []services.Product) []productPayload {
	out := make([]productPayload, 0, len(products))
	for _, product := range products {
		out = append(out, buildProductPayload(product))
	}
	return out
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:             product.ID,
		Name:           product.Name,
		Price:          formatMoney(product.Price),
		Stock:          product.Stock,
		InStock:        product.Stock > 0,
		CategoryID:     product.CategoryID,
		RatingsAverage: product.RatingsAverage.StringFixed(2),
		RatingsCount:   product.RatingsCount,
		UpdatedAt:      formatTime(product.UpdatedAt),
	}
}
