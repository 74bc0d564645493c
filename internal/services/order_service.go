package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

const (
	orderEventCreated           = "order.created"
	orderEventFulfillmentChange = "order.fulfillment.changed"

	defaultOrderCurrency = "USD"
	maxOrderListLimit    = 200
)

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Currency string
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	// NewID overrides ULID generation, used by tests.
	NewID func() string
}

type orderService struct {
	orders   repositories.OrderRepository
	currency string
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	newID    func() string
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}
	return &orderService{
		orders:   deps.Orders,
		currency: currency,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		newID:    newID,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if strings.TrimSpace(cmd.Account.ID) == "" {
		return Order{}, internal("order_create_failed", "order could not be created", errors.New("account is required"))
	}
	kind := cmd.Kind
	if kind == "" {
		kind = domain.OrderKindPurchase
	}

	items := make([]domain.OrderItem, 0, len(cmd.Snapshot.Lines))
	for _, line := range cmd.Snapshot.Lines {
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	now := s.now()
	order := domain.Order{
		ID:                s.newID(),
		AccountID:         cmd.Account.ID,
		Kind:              kind,
		Items:             items,
		Total:             cmd.Snapshot.Total,
		Currency:          s.currency,
		FulfillmentStatus: domain.FulfillmentPending,
		PaymentStatus:     domain.PaymentPending,
		PaymentMethod:     cmd.Method,
		ProviderIntentID:  strings.TrimSpace(cmd.ProviderIntentID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	switch cmd.Method {
	case domain.PaymentMethodCOD:
		order.PaymentStatus = domain.PaymentCompleted
	case domain.PaymentMethodWallet:
		// Wallet orders are created only after the debit succeeded.
		paid := now
		order.PaymentStatus = domain.PaymentCompleted
		order.PaidAt = &paid
	}
	if cmd.Contact != nil && (cmd.Contact.Phone != "" || cmd.Contact.Address != "") {
		contact := *cmd.Contact
		order.Contact = &contact
	}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return Order{}, storeError("create order", err)
	}
	if created.ID == "" {
		return Order{}, internal("order_create_failed", "order could not be created", nil)
	}
	s.logger(ctx, orderEventCreated, map[string]any{
		"orderId":       created.ID,
		"accountId":     created.AccountID,
		"kind":          string(created.Kind),
		"paymentMethod": string(created.PaymentMethod),
		"total":         created.Total.String(),
	})
	return created, nil
}

func (s *orderService) UpdateFulfillmentStatus(ctx context.Context, cmd UpdateFulfillmentCommand) (Order, error) {
	if !cmd.Actor.Admin {
		return Order{}, forbidden("insufficient_role", "You don't have permission to perform this action")
	}
	status, ok := domain.ParseFulfillmentStatus(cmd.Status)
	if !ok {
		return Order{}, badRequest("invalid_status", "Status must be one of Pending, Shipped, Delivered")
	}
	order, err := s.orders.UpdateFulfillmentStatus(ctx, strings.TrimSpace(cmd.OrderID), status, s.now())
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, notFound("order_not_found", "Order not found")
		}
		return Order{}, storeError("update order", err)
	}
	s.logger(ctx, orderEventFulfillmentChange, map[string]any{
		"orderId": order.ID,
		"status":  string(status),
		"actor":   cmd.Actor.AccountID,
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, viewer Viewer, orderID string) (Order, error) {
	order, err := s.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, notFound("order_not_found", "Order not found")
		}
		return Order{}, storeError("load order", err)
	}
	if !viewer.Admin && order.AccountID != viewer.AccountID {
		return Order{}, forbidden("order_forbidden", "You don't have permission to view this order")
	}
	return order, nil
}

func (s *orderService) ListMyOrders(ctx context.Context, accountID string) ([]Order, error) {
	orders, err := s.orders.ListByAccount(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return nil, storeError("list orders", err)
	}
	return orders, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error) {
	repoFilter := repositories.OrderFilter{Limit: filter.Limit}
	if repoFilter.Limit <= 0 || repoFilter.Limit > maxOrderListLimit {
		repoFilter.Limit = maxOrderListLimit
	}
	if raw := strings.TrimSpace(filter.PaymentStatus); raw != "" {
		var status domain.PaymentStatus
		switch {
		case strings.EqualFold(raw, string(domain.PaymentPending)):
			status = domain.PaymentPending
		case strings.EqualFold(raw, string(domain.PaymentCompleted)):
			status = domain.PaymentCompleted
		default:
			return nil, badRequest("invalid_payment_status", "paymentStatus must be Pending or Completed")
		}
		repoFilter.PaymentStatus = &status
	}
	orders, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return nil, storeError("list orders", err)
	}
	return orders, nil
}
