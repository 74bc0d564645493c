package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

const (
	orderCollection       = "orders"
	orderIntentCollection = "orderIntents"
)

// OrderRepository stores orders and a provider-intent index used to find the order a webhook or
// redirect confirms.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	intents  *pfirestore.BaseRepository[intentIndexDocument]
	now      func() time.Time
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, clock func() time.Time) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		intents:  pfirestore.NewBaseRepository[intentIndexDocument](provider, orderIntentCollection),
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		if order.ProviderIntentID != "" {
			intentRef, err := r.intents.DocumentRef(ctx, order.ProviderIntentID)
			if err != nil {
				return err
			}
			if err := tx.Create(intentRef, intentIndexDocument{OrderID: order.ID}); err != nil {
				return err
			}
		}
		return tx.Create(orderRef, newOrderDocument(order))
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.create", err)
	}
	return order, nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByProviderIntent resolves the intent index and its order from one snapshot so a webhook
// never pairs an intent with an order written after it.
func (r *OrderRepository) FindByProviderIntent(ctx context.Context, intentID string) (domain.Order, error) {
	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		index, err := r.intents.TxGet(ctx, tx, strings.TrimSpace(intentID))
		if err != nil {
			return err
		}
		doc, err := r.orders.TxGet(ctx, tx, index.Data.OrderID)
		if err != nil {
			return err
		}
		result = doc.Data.toDomain(doc.ID)
		return nil
	}, pfirestore.WithReadOnly())
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByProviderIntent", err)
	}
	return result, nil
}

func (r *OrderRepository) MarkPaymentCompleted(ctx context.Context, orderID string, paidAt time.Time) (domain.Order, bool, error) {
	var (
		result       domain.Order
		transitioned bool
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		transitioned = false
		doc, err := r.orders.TxGet(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if doc.Data.PaymentStatus == string(domain.PaymentCompleted) {
			result = doc.Data.toDomain(orderID)
			return nil
		}
		paid := paidAt.UTC()
		doc.Data.PaymentStatus = string(domain.PaymentCompleted)
		doc.Data.PaidAt = &paid
		doc.Data.UpdatedAt = r.now()
		if err := r.orders.TxSet(ctx, tx, orderID, doc.Data); err != nil {
			return err
		}
		result = doc.Data.toDomain(orderID)
		transitioned = true
		return nil
	})
	if err != nil {
		return domain.Order{}, false, pfirestore.WrapError("orders.markPaymentCompleted", err)
	}
	return result, transitioned, nil
}

func (r *OrderRepository) ReopenPayment(ctx context.Context, orderID string) (domain.Order, error) {
	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.orders.TxGet(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if doc.Data.PaymentStatus != string(domain.PaymentCompleted) {
			result = doc.Data.toDomain(orderID)
			return nil
		}
		doc.Data.PaymentStatus = string(domain.PaymentPending)
		doc.Data.PaidAt = nil
		doc.Data.UpdatedAt = r.now()
		if err := r.orders.TxSet(ctx, tx, orderID, doc.Data); err != nil {
			return err
		}
		result = doc.Data.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.reopenPayment", err)
	}
	return result, nil
}

func (r *OrderRepository) UpdateFulfillmentStatus(ctx context.Context, orderID string, status domain.FulfillmentStatus, updatedAt time.Time) (domain.Order, error) {
	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.orders.TxGet(ctx, tx, orderID)
		if err != nil {
			return err
		}
		doc.Data.FulfillmentStatus = string(status)
		doc.Data.UpdatedAt = updatedAt.UTC()
		if err := r.orders.TxSet(ctx, tx, orderID, doc.Data); err != nil {
			return err
		}
		result = doc.Data.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updateFulfillmentStatus", err)
	}
	return result, nil
}

func (r *OrderRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Order, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("accountId", "==", accountID).OrderBy("createdAt", firestore.Desc)
	})
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderFilter) ([]domain.Order, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		if filter.PaymentStatus != nil {
			q = q.Where("paymentStatus", "==", string(*filter.PaymentStatus))
		}
		if len(filter.Methods) > 0 {
			methods := make([]string, 0, len(filter.Methods))
			for _, method := range filter.Methods {
				methods = append(methods, string(method))
			}
			q = q.Where("paymentMethod", "in", methods)
		}
		if filter.CreatedBefore != nil {
			q = q.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
}

func (r *OrderRepository) query(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

type orderDocument struct {
	AccountID         string              `firestore:"accountId"`
	Kind              string              `firestore:"kind"`
	Items             []orderItemDocument `firestore:"items"`
	Total             string              `firestore:"total"`
	Currency          string              `firestore:"currency"`
	FulfillmentStatus string              `firestore:"fulfillmentStatus"`
	PaymentStatus     string              `firestore:"paymentStatus"`
	PaymentMethod     string              `firestore:"paymentMethod"`
	ProviderIntentID  string              `firestore:"providerIntentId,omitempty"`
	Phone             string              `firestore:"phone,omitempty"`
	Address           string              `firestore:"address,omitempty"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
	PaidAt            *time.Time          `firestore:"paidAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice string `firestore:"unitPrice"`
}

type intentIndexDocument struct {
	OrderID string `firestore:"orderId"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
		})
	}
	doc := orderDocument{
		AccountID:         order.AccountID,
		Kind:              string(order.Kind),
		Items:             items,
		Total:             order.Total.String(),
		Currency:          order.Currency,
		FulfillmentStatus: string(order.FulfillmentStatus),
		PaymentStatus:     string(order.PaymentStatus),
		PaymentMethod:     string(order.PaymentMethod),
		ProviderIntentID:  order.ProviderIntentID,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
		PaidAt:            order.PaidAt,
	}
	if order.Contact != nil {
		doc.Phone = order.Contact.Phone
		doc.Address = order.Contact.Address
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: parseDecimal(item.UnitPrice),
		})
	}
	order := domain.Order{
		ID:                id,
		AccountID:         d.AccountID,
		Kind:              domain.OrderKind(d.Kind),
		Items:             items,
		Total:             parseDecimal(d.Total),
		Currency:          d.Currency,
		FulfillmentStatus: domain.FulfillmentStatus(d.FulfillmentStatus),
		PaymentStatus:     domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:     domain.PaymentMethod(d.PaymentMethod),
		ProviderIntentID:  d.ProviderIntentID,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		PaidAt:            d.PaidAt,
	}
	if d.Phone != "" || d.Address != "" {
		order.Contact = &domain.OrderContact{Phone: d.Phone, Address: d.Address}
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
