package memory

import (
	"context"
	"sort"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// OrderRepository keeps orders in insertion order.
type OrderRepository struct {
	clocked
	byID     map[string]domain.Order
	byIntent map[string]string
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs an empty order store.
func NewOrderRepository(clock func() time.Time) *OrderRepository {
	return &OrderRepository{
		clocked:  clocked{now: clock},
		byID:     make(map[string]domain.Order),
		byIntent: make(map[string]string),
	}
}

func (r *OrderRepository) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[order.ID]; exists {
		return domain.Order{}, repositories.NewConflictError("orders.create", "order already exists")
	}
	if order.ProviderIntentID != "" {
		if _, exists := r.byIntent[order.ProviderIntentID]; exists {
			return domain.Order{}, repositories.NewConflictError("orders.create", "provider intent already linked")
		}
		r.byIntent[order.ProviderIntentID] = order.ID
	}
	now := r.timestamp()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	r.byID[order.ID] = cloneOrder(order)
	return order, nil
}

func (r *OrderRepository) Get(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.get", "order not found")
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) FindByProviderIntent(_ context.Context, intentID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orderID, ok := r.byIntent[intentID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.findByProviderIntent", "order not found")
	}
	return cloneOrder(r.byID[orderID]), nil
}

func (r *OrderRepository) MarkPaymentCompleted(_ context.Context, orderID string, paidAt time.Time) (domain.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, false, repositories.NewNotFoundError("orders.markPaymentCompleted", "order not found")
	}
	if order.PaymentStatus == domain.PaymentCompleted {
		return cloneOrder(order), false, nil
	}
	paid := paidAt.UTC()
	order.PaymentStatus = domain.PaymentCompleted
	order.PaidAt = &paid
	order.UpdatedAt = r.timestamp()
	r.byID[orderID] = order
	return cloneOrder(order), true, nil
}

func (r *OrderRepository) ReopenPayment(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.reopenPayment", "order not found")
	}
	if order.PaymentStatus != domain.PaymentCompleted {
		return cloneOrder(order), nil
	}
	order.PaymentStatus = domain.PaymentPending
	order.PaidAt = nil
	order.UpdatedAt = r.timestamp()
	r.byID[orderID] = order
	return cloneOrder(order), nil
}

func (r *OrderRepository) UpdateFulfillmentStatus(_ context.Context, orderID string, status domain.FulfillmentStatus, updatedAt time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.updateFulfillmentStatus", "order not found")
	}
	order.FulfillmentStatus = status
	order.UpdatedAt = updatedAt.UTC()
	r.byID[orderID] = order
	return cloneOrder(order), nil
}

func (r *OrderRepository) ListByAccount(_ context.Context, accountID string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, order := range r.byID {
		if order.AccountID == accountID {
			out = append(out, cloneOrder(order))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *OrderRepository) List(_ context.Context, filter repositories.OrderFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Order, 0, len(r.byID))
	for _, order := range r.byID {
		if filter.PaymentStatus != nil && order.PaymentStatus != *filter.PaymentStatus {
			continue
		}
		if len(filter.Methods) > 0 && !containsMethod(filter.Methods, order.PaymentMethod) {
			continue
		}
		if filter.CreatedBefore != nil && !order.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsMethod(methods []domain.PaymentMethod, method domain.PaymentMethod) bool {
	for _, candidate := range methods {
		if candidate == method {
			return true
		}
	}
	return false
}

func sortNewestFirst(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	if order.Contact != nil {
		contact := *order.Contact
		order.Contact = &contact
	}
	if order.PaidAt != nil {
		paid := *order.PaidAt
		order.PaidAt = &paid
	}
	return order
}
