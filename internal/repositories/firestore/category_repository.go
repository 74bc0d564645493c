package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

const categoryCollection = "categories"

// CategoryRepository stores the categories products point at.
type CategoryRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[categoryDocument]
	now      func() time.Time
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider, clock func() time.Time) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &CategoryRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection),
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (r *CategoryRepository) Get(ctx context.Context, categoryID string) (domain.Category, error) {
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *CategoryRepository) Upsert(ctx context.Context, category domain.Category) (domain.Category, error) {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.now()
		existing, err := r.base.TxGet(ctx, tx, category.ID)
		switch {
		case err == nil:
			category.CreatedAt = existing.Data.CreatedAt
		case isNotFound(err):
			category.CreatedAt = now
		default:
			return err
		}
		category.UpdatedAt = now
		return r.base.TxSet(ctx, tx, category.ID, newCategoryDocument(category))
	})
	if err != nil {
		return domain.Category{}, pfirestore.WrapError("categories.upsert", err)
	}
	return category, nil
}

type categoryDocument struct {
	Name      string    `firestore:"name"`
	Slug      string    `firestore:"slug"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newCategoryDocument(category domain.Category) categoryDocument {
	return categoryDocument{
		Name:      category.Name,
		Slug:      category.Slug,
		CreatedAt: category.CreatedAt,
		UpdatedAt: category.UpdatedAt,
	}
}

func (d categoryDocument) toDomain(id string) domain.Category {
	return domain.Category{
		ID:        id,
		Name:      d.Name,
		Slug:      d.Slug,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)
