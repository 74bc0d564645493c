package services

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

const (
	maxReviewTitleLength   = 120
	maxReviewBodyLength    = 2000
	defaultReviewListLimit = 50
	maxReviewListLimit     = 200
)

// ReviewServiceDeps wires the dependencies required by the review service.
type ReviewServiceDeps struct {
	Reviews  repositories.ReviewRepository
	Products repositories.ProductRepository
	Accounts repositories.AccountRepository
	// Cache is invalidated after the product rating changes. Optional.
	Cache     ProductCache
	Sanitizer func(string) string
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews  repositories.ReviewRepository
	products repositories.ProductRepository
	accounts repositories.AccountRepository
	cache    ProductCache
	sanitize func(string) string
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewReviewService constructs a ReviewService validating required dependencies.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("review service: account repository is required")
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = newReviewSanitizer()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reviewService{
		reviews:  deps.Reviews,
		products: deps.Products,
		accounts: deps.Accounts,
		cache:    deps.Cache,
		sanitize: sanitize,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Review{}, badRequest("product_required", "productId is required")
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Review{}, badRequest("invalid_rating", "Rating must be between 1 and 5")
	}
	title := s.sanitize(cmd.Title)
	if title == "" {
		return Review{}, badRequest("invalid_review", "Review title is required")
	}
	if utf8.RuneCountInString(title) > maxReviewTitleLength {
		return Review{}, badRequest("invalid_review", "Review title is too long")
	}
	body := s.sanitize(cmd.Body)
	if body == "" {
		return Review{}, badRequest("invalid_review", "Review text is required")
	}
	if utf8.RuneCountInString(body) > maxReviewBodyLength {
		return Review{}, badRequest("invalid_review", "Review text is too long")
	}

	account, err := s.accounts.Get(ctx, cmd.AccountID)
	if err != nil {
		if isRepoNotFound(err) {
			return Review{}, unauthorized("account_not_found", "Account not found")
		}
		return Review{}, storeError("load account", err)
	}
	if account.IsGuest() {
		return Review{}, forbidden("review_requires_account", "Please register to write a review")
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		if isRepoNotFound(err) {
			return Review{}, notFound("product_not_found", "Product not found")
		}
		return Review{}, storeError("load product", err)
	}

	review, err := s.reviews.Create(ctx, Review{
		ID:         domain.ReviewID(productID, account.ID),
		ProductID:  productID,
		AccountID:  account.ID,
		AuthorName: account.Name,
		Title:      title,
		Body:       body,
		Rating:     cmd.Rating,
		CreatedAt:  s.now(),
	})
	if err != nil {
		if isRepoConflict(err) {
			return Review{}, badRequest("review_duplicate", "You already reviewed this product")
		}
		return Review{}, storeError("create review", err)
	}
	s.logger(ctx, "review.created", map[string]any{"reviewId": review.ID, "productId": productID, "rating": review.Rating})
	s.refreshRating(ctx, productID)
	return review, nil
}

func (s *reviewService) List(ctx context.Context, filter repositories.ReviewFilter) ([]Review, error) {
	filter.ProductID = strings.TrimSpace(filter.ProductID)
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultReviewListLimit
	case filter.Limit > maxReviewListLimit:
		filter.Limit = maxReviewListLimit
	}
	reviews, err := s.reviews.List(ctx, filter)
	if err != nil {
		return nil, storeError("list reviews", err)
	}
	return reviews, nil
}

func (s *reviewService) Get(ctx context.Context, reviewID string) (Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return Review{}, badRequest("review_required", "reviewId is required")
	}
	review, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		if isRepoNotFound(err) {
			return Review{}, notFound("review_not_found", "Review not found")
		}
		return Review{}, storeError("load review", err)
	}
	return review, nil
}

func (s *reviewService) Delete(ctx context.Context, actor Viewer, reviewID string) error {
	if !actor.Admin {
		return forbidden("insufficient_role", "You don't have permission to perform this action")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return badRequest("review_required", "reviewId is required")
	}
	removed, err := s.reviews.Delete(ctx, reviewID)
	if err != nil {
		if isRepoNotFound(err) {
			return notFound("review_not_found", "Review not found")
		}
		return storeError("delete review", err)
	}
	s.logger(ctx, "review.deleted", map[string]any{"reviewId": reviewID, "productId": removed.ProductID, "actor": actor.AccountID})
	s.refreshRating(ctx, removed.ProductID)
	return nil
}

// refreshRating recomputes the product rating from every stored review. Failures are logged; the
// next review change recomputes it.
func (s *reviewService) refreshRating(ctx context.Context, productID string) {
	reviews, err := s.reviews.List(ctx, repositories.ReviewFilter{ProductID: productID})
	if err != nil {
		s.logger(ctx, "review.rating.refresh_failed", map[string]any{"productId": productID, "error": err.Error()})
		return
	}
	average, count := averageRating(reviews)
	if _, err := s.products.SetRating(ctx, productID, average, count); err != nil {
		if isRepoNotFound(err) {
			return
		}
		s.logger(ctx, "review.rating.refresh_failed", map[string]any{"productId": productID, "error": err.Error()})
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, productID); err != nil {
			s.logger(ctx, "catalog.cache.invalidate_failed", map[string]any{"productId": productID, "error": err.Error()})
		}
	}
}

// averageRating is the mean rating rounded to two places, zero when there are no reviews.
func averageRating(reviews []Review) (decimal.Decimal, int) {
	if len(reviews) == 0 {
		return decimal.Zero, 0
	}
	sum := 0
	for _, review := range reviews {
		sum += review.Rating
	}
	return decimal.NewFromInt(int64(sum)).DivRound(decimal.NewFromInt(int64(len(reviews))), 2), len(reviews)
}

// newReviewSanitizer strips all markup and returns plain text. Entities are decoded and the result
// sanitized again so encoded tags cannot survive as literal markup.
func newReviewSanitizer() func(string) string {
	policy := bluemonday.StrictPolicy()
	return func(input string) string {
		text := strings.TrimSpace(input)
		for range 3 {
			cleaned := html.UnescapeString(policy.Sanitize(text))
			if cleaned == text {
				break
			}
			text = cleaned
		}
		return strings.Join(strings.Fields(text), " ")
	}
}
