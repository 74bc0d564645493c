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

const reviewCollection = "reviews"

// ReviewRepository stores reviews under their product/account id so one account reviews a product once.
type ReviewRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[reviewDocument]
	now      func() time.Time
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider, clock func() time.Time) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &ReviewRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[reviewDocument](provider, reviewCollection),
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (r *ReviewRepository) Create(ctx context.Context, review domain.Review) (domain.Review, error) {
	now := r.now()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = now
	if err := r.base.Create(ctx, review.ID, newReviewDocument(review)); err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

func (r *ReviewRepository) Get(ctx context.Context, reviewID string) (domain.Review, error) {
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ReviewRepository) List(ctx context.Context, filter repositories.ReviewFilter) ([]domain.Review, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ProductID != "" {
			q = q.Where("productId", "==", filter.ProductID)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) (domain.Review, error) {
	var removed domain.Review
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.base.TxGet(ctx, tx, reviewID)
		if err != nil {
			return err
		}
		ref, err := r.base.DocumentRef(ctx, reviewID)
		if err != nil {
			return err
		}
		removed = doc.Data.toDomain(reviewID)
		return tx.Delete(ref)
	})
	if err != nil {
		return domain.Review{}, pfirestore.WrapError("reviews.delete", err)
	}
	return removed, nil
}

type reviewDocument struct {
	ProductID  string    `firestore:"productId"`
	AccountID  string    `firestore:"accountId"`
	AuthorName string    `firestore:"authorName,omitempty"`
	Title      string    `firestore:"title"`
	Body       string    `firestore:"body"`
	Rating     int       `firestore:"rating"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func newReviewDocument(review domain.Review) reviewDocument {
	return reviewDocument{
		ProductID:  review.ProductID,
		AccountID:  review.AccountID,
		AuthorName: review.AuthorName,
		Title:      review.Title,
		Body:       review.Body,
		Rating:     review.Rating,
		CreatedAt:  review.CreatedAt,
		UpdatedAt:  review.UpdatedAt,
	}
}

func (d reviewDocument) toDomain(id string) domain.Review {
	return domain.Review{
		ID:         id,
		ProductID:  d.ProductID,
		AccountID:  d.AccountID,
		AuthorName: d.AuthorName,
		Title:      d.Title,
		Body:       d.Body,
		Rating:     d.Rating,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
