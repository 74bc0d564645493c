package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

// OrderHandlers exposes the authenticated shopper's order history.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers requiring a verified credential when authn is set.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orders, err := h.orders.ListMyOrders(ctx, identity.AccountID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, orderListPayload{Orders: buildOrderPayloads(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	order, err := h.orders.GetOrder(ctx, services.Viewer{AccountID: identity.AccountID, Admin: identity.IsAdmin()}, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderResponse struct {
	Order       orderPayload `json:"order"`
	ApprovalURL string       `json:"approvalUrl,omitempty"`
	// Set on checkout, which resolves the account itself.
	Token          string `json:"token,omitempty"`
	IsGuestCreated *bool  `json:"isGuestCreated,omitempty"`
}

type orderListPayload struct {
	Orders []orderPayload `json:"orders"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	AccountID         string             `json:"accountId"`
	Kind              string             `json:"kind"`
	Items             []orderItemPayload `json:"items,omitempty"`
	Total             string             `json:"total"`
	Currency          string             `json:"currency"`
	FulfillmentStatus string             `json:"fulfillmentStatus"`
	PaymentStatus     string             `json:"paymentStatus"`
	PaymentMethod     string             `json:"paymentMethod"`
	ProviderIntentID  string             `json:"providerIntentId,omitempty"`
	Phone             string             `json:"phone,omitempty"`
	Address           string             `json:"address,omitempty"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt,omitempty"`
	PaidAt            string             `json:"paidAt,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

func buildOrderPayloads(orders []services.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderPayload(order))
	}
	return out
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: formatMoney(item.UnitPrice),
		})
	}
	payload := orderPayload{
		ID:                order.ID,
		AccountID:         order.AccountID,
		Kind:              string(order.Kind),
		Items:             items,
		Total:             formatMoney(order.Total),
		Currency:          order.Currency,
		FulfillmentStatus: string(order.FulfillmentStatus),
		PaymentStatus:     string(order.PaymentStatus),
		PaymentMethod:     string(order.PaymentMethod),
		ProviderIntentID:  order.ProviderIntentID,
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
	if order.Contact != nil {
		payload.Phone = order.Contact.Phone
		payload.Address = order.Contact.Address
	}
	if order.PaidAt != nil {
		payload.PaidAt = formatTime(*order.PaidAt)
	}
	return payload
}
