package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads the catalog and applies conditional stock decrements.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
	now      func() time.Time
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider, clock func() time.Time) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &ProductRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[productDocument](provider, productCollection),
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductFilter) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CategoryID != "" {
			q = q.Where("categoryId", "==", filter.CategoryID)
		}
		q = q.OrderBy(firestore.DocumentID, firestore.Asc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := r.base.TxGet(ctx, tx, product.ID)
		switch {
		case err == nil:
			product.RatingsAverage = parseDecimal(existing.Data.RatingsAverage)
			product.RatingsCount = existing.Data.RatingsCount
		case !isNotFound(err):
			return err
		}
		product.UpdatedAt = r.now()
		return r.base.TxSet(ctx, tx, product.ID, newProductDocument(product))
	})
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.upsert", err)
	}
	return product, nil
}

func (r *ProductRepository) SetRating(ctx context.Context, productID string, average decimal.Decimal, count int) (domain.Product, error) {
	var result domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.base.TxGet(ctx, tx, productID)
		if err != nil {
			return err
		}
		doc.Data.RatingsAverage = average.String()
		doc.Data.RatingsCount = count
		result = doc.Data.toDomain(productID)
		return r.base.TxSet(ctx, tx, productID, doc.Data)
	})
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.setRating", err)
	}
	return result, nil
}

func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, quantity int) (domain.Product, error) {
	var result domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.base.TxGet(ctx, tx, productID)
		if err != nil {
			return err
		}
		result = doc.Data.toDomain(productID)
		if doc.Data.Stock < quantity {
			return repositories.NewConflictError("products.decrementStock", "insufficient stock")
		}
		doc.Data.Stock -= quantity
		doc.Data.UpdatedAt = r.now()
		if err := r.base.TxSet(ctx, tx, productID, doc.Data); err != nil {
			return err
		}
		result = doc.Data.toDomain(productID)
		return nil
	})
	if err != nil {
		return result, pfirestore.WrapError("products.decrementStock", err)
	}
	return result, nil
}

type productDocument struct {
	Name           string    `firestore:"name"`
	Price          string    `firestore:"price"`
	Stock          int       `firestore:"stock"`
	CategoryID     string    `firestore:"categoryId,omitempty"`
	RatingsAverage string    `firestore:"ratingsAverage,omitempty"`
	RatingsCount   int       `firestore:"ratingsCount"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:           product.Name,
		Price:          product.Price.String(),
		Stock:          product.Stock,
		CategoryID:     product.CategoryID,
		RatingsAverage: product.RatingsAverage.String(),
		RatingsCount:   product.RatingsCount,
		UpdatedAt:      product.UpdatedAt,
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:             id,
		Name:           d.Name,
		Price:          parseDecimal(d.Price),
		Stock:          d.Stock,
		CategoryID:     d.CategoryID,
		RatingsAverage: parseDecimal(d.RatingsAverage),
		RatingsCount:   d.RatingsCount,
		UpdatedAt:      d.UpdatedAt,
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
