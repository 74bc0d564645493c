package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/services"
)

const maxReviewBodySize = 16 * 1024

// ReviewHandlers exposes public review reads and review creation for registered shoppers.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs review handlers.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{authn: authn, reviews: reviews}
}

// Routes wires the /reviews endpoints onto the provided router.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.Get("/{reviewId}", h.get)
	if h.authn != nil {
		r.With(h.authn.RequireAuth()).Post("/", h.create)
	} else {
		r.Post("/", h.create)
	}
}

type reviewRequest struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Review    string `json:"review"`
	Rating    int    `json:"rating"`
}

type reviewResponse struct {
	Review reviewPayload `json:"review"`
}

type reviewListPayload struct {
	Reviews []reviewPayload `json:"reviews"`
}

type reviewPayload struct {
	ID         string `json:"id"`
	ProductID  string `json:"productId"`
	AuthorName string `json:"authorName,omitempty"`
	Title      string `json:"title"`
	Review     string `json:"review"`
	Rating     int    `json:"rating"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

func (h *ReviewHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	filter := repositories.ReviewFilter{ProductID: strings.TrimSpace(r.URL.Query().Get("product"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		filter.Limit = limit
	}
	reviews, err := h.reviews.List(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	out := make([]reviewPayload, 0, len(reviews))
	for _, review := range reviews {
		out = append(out, buildReviewPayload(review))
	}
	httpx.WriteData(w, http.StatusOK, reviewListPayload{Reviews: out})
}

func (h *ReviewHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	review, err := h.reviews.Get(ctx, strings.TrimSpace(chi.URLParam(r, "reviewId")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review)})
}

func (h *ReviewHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeBody(w, r, maxReviewBodySize, &req) {
		return
	}
	review, err := h.reviews.Create(ctx, services.CreateReviewCommand{
		AccountID: identity.AccountID,
		ProductID: req.ProductID,
		Title:     req.Title,
		Body:      req.Review,
		Rating:    req.Rating,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, reviewResponse{Review: buildReviewPayload(review)})
}

func buildReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:         review.ID,
		ProductID:  review.ProductID,
		AuthorName: review.AuthorName,
		Title:      review.Title,
		Review:     review.Body,
		Rating:     review.Rating,
		CreatedAt:  formatTime(review.CreatedAt),
	}
}
