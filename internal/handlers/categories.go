package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

// CategoryHandlers exposes the public category listing.
type CategoryHandlers struct {
	categories services.CategoryService
}

// NewCategoryHandlers constructs category handlers.
func NewCategoryHandlers(categories services.CategoryService) *CategoryHandlers {
	return &CategoryHandlers{categories: categories}
}

// Routes wires the /categories endpoints onto the provided router.
func (h *CategoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.Get("/{categoryId}", h.get)
}

type categoryResponse struct {
	Category categoryPayload `json:"category"`
}

type categoryListPayload struct {
	Categories []categoryPayload `json:"categories"`
}

type categoryPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (h *CategoryHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		serviceUnavailable(ctx, w, "category")
		return
	}
	categories, err := h.categories.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	out := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		out = append(out, buildCategoryPayload(category))
	}
	httpx.WriteData(w, http.StatusOK, categoryListPayload{Categories: out})
}

func (h *CategoryHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		serviceUnavailable(ctx, w, "category")
		return
	}
	category, err := h.categories.Get(ctx, strings.TrimSpace(chi.URLParam(r, "categoryId")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, categoryResponse{Category: buildCategoryPayload(category)})
}

func buildCategoryPayload(category services.Category) categoryPayload {
	return categoryPayload{ID: category.ID, Name: category.Name, Slug: category.Slug}
}
