package memory

import (
	"context"
	"sort"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// CategoryRepository keeps categories keyed by id.
type CategoryRepository struct {
	clocked
	byID map[string]domain.Category
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs an empty category store.
func NewCategoryRepository(clock func() time.Time) *CategoryRepository {
	return &CategoryRepository{
		clocked: clocked{now: clock},
		byID:    make(map[string]domain.Category),
	}
}

func (r *CategoryRepository) Get(_ context.Context, categoryID string) (domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	category, ok := r.byID[categoryID]
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("categories.get", "category not found")
	}
	return category, nil
}

func (r *CategoryRepository) List(context.Context) ([]domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Category, 0, len(r.byID))
	for _, category := range r.byID {
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *CategoryRepository) Upsert(_ context.Context, category domain.Category) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.timestamp()
	if existing, ok := r.byID[category.ID]; ok {
		category.CreatedAt = existing.CreatedAt
	} else if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = now
	r.byID[category.ID] = category
	return category, nil
}
