package memory

import (
	"context"
	"sort"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// ReviewRepository keeps reviews keyed by id.
type ReviewRepository struct {
	clocked
	byID map[string]domain.Review
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository constructs an empty review store.
func NewReviewRepository(clock func() time.Time) *ReviewRepository {
	return &ReviewRepository{
		clocked: clocked{now: clock},
		byID:    make(map[string]domain.Review),
	}
}

func (r *ReviewRepository) Create(_ context.Context, review domain.Review) (domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[review.ID]; exists {
		return domain.Review{}, repositories.NewConflictError("reviews.create", "review already exists")
	}
	now := r.timestamp()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = now
	r.byID[review.ID] = review
	return review, nil
}

func (r *ReviewRepository) Get(_ context.Context, reviewID string) (domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	review, ok := r.byID[reviewID]
	if !ok {
		return domain.Review{}, repositories.NewNotFoundError("reviews.get", "review not found")
	}
	return review, nil
}

func (r *ReviewRepository) List(_ context.Context, filter repositories.ReviewFilter) ([]domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Review, 0)
	for _, review := range r.byID {
		if filter.ProductID != "" && review.ProductID != filter.ProductID {
			continue
		}
		out = append(out, review)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *ReviewRepository) Delete(_ context.Context, reviewID string) (domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.byID[reviewID]
	if !ok {
		return domain.Review{}, repositories.NewNotFoundError("reviews.delete", "review not found")
	}
	delete(r.byID, reviewID)
	return review, nil
}
