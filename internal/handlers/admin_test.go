package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/services"
)

func TestAdminHandlersRequireAdminRole(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("handler-test-secret", "storefront")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	customer, _ := issuer.Issue("acc-1", auth.RoleCustomer)
	admin, _ := issuer.Issue("adm-1", auth.RoleAdmin)

	orders := &stubOrderService{
		listFunc: func(ctx context.Context, filter services.OrderListFilter) ([]services.Order, error) {
			if filter.PaymentStatus != "Pending" || filter.Limit != 10 {
				t.Fatalf("unexpected filter %+v", filter)
			}
			return []services.Order{pendingOrder("ord-1", "acc-1", domain.PaymentMethodPayPal)}, nil
		},
	}
	router := chi.NewRouter()
	NewAdminHandlers(auth.NewAuthenticator(issuer), AdminServices{Orders: orders}).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/orders?paymentStatus=Pending&limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+customer)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for customer, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders?paymentStatus=Pending&limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for admin, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlersUpdateOrderStatus(t *testing.T) {
	var captured services.UpdateFulfillmentCommand
	orders := &stubOrderService{
		updateFunc: func(ctx context.Context, cmd services.UpdateFulfillmentCommand) (services.Order, error) {
			captured = cmd
			order := pendingOrder(cmd.OrderID, "acc-1", domain.PaymentMethodCOD)
			order.FulfillmentStatus = domain.FulfillmentShipped
			return order, nil
		},
	}
	router := chi.NewRouter()
	NewAdminHandlers(nil, AdminServices{Orders: orders}).Routes(router)

	req := httptest.NewRequest(http.MethodPatch, "/orders/ord-1/status", bytes.NewBufferString(`{"status":"shipped"}`))
	req = req.WithContext(withIdentity(req.Context(), "adm-1", auth.RoleAdmin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord-1" || captured.Status != "shipped" || !captured.Actor.Admin {
		t.Fatalf("unexpected command %+v", captured)
	}
	var payload orderResponse
	decodeEnvelope(t, rr, &payload)
	if payload.Order.FulfillmentStatus != "Shipped" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestAdminHandlersUpdateAccountStatus(t *testing.T) {
	accounts := &stubAccountAdminService{
		updateFunc: func(ctx context.Context, accountID, status string) (services.AccountView, error) {
			if status == "Guest" {
				return services.AccountView{}, &services.Error{Kind: services.ErrBadRequest, Code: "invalid_status", Message: "Status cannot be set to Guest"}
			}
			view := sampleAccountView(accountID)
			view.Status = domain.AccountStatusRestricted
			return view, nil
		},
	}
	router := chi.NewRouter()
	NewAdminHandlers(nil, AdminServices{Accounts: accounts}).Routes(router)

	req := httptest.NewRequest(http.MethodPatch, "/accounts/acc-1/status", bytes.NewBufferString(`{"status":"Restricted"}`))
	req = req.WithContext(withIdentity(req.Context(), "adm-1", auth.RoleAdmin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var payload accountResponse
	decodeEnvelope(t, rr, &payload)
	if rr.Code != http.StatusOK || payload.Account.Status != "Restricted" {
		t.Fatalf("expected restricted account, got %d %+v", rr.Code, payload)
	}

	req = httptest.NewRequest(http.MethodPatch, "/accounts/acc-1/status", bytes.NewBufferString(`{"status":"Guest"}`))
	req = req.WithContext(withIdentity(req.Context(), "adm-1", auth.RoleAdmin))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlersUpsertProduct(t *testing.T) {
	var captured services.UpsertProductCommand
	catalog := &stubCatalogService{
		upsertFunc: func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
			captured = cmd
			return services.Product{ID: cmd.ID, Name: cmd.Name, Price: cmd.Price, Stock: cmd.Stock}, nil
		},
	}
	router := chi.NewRouter()
	NewAdminHandlers(nil, AdminServices{Catalog: catalog}).Routes(router)

	req := httptest.NewRequest(http.MethodPut, "/products/p-1", bytes.NewBufferString(`{"name":"Tea","price":"4.2","stock":9}`))
	req = req.WithContext(withIdentity(req.Context(), "adm-1", auth.RoleAdmin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ID != "p-1" || !captured.Price.Equal(decimal.RequireFromString("4.2")) || captured.Stock != 9 {
		t.Fatalf("unexpected command %+v", captured)
	}
	var payload productResponse
	decodeEnvelope(t, rr, &payload)
	if payload.Product.Price != "4.20" || !payload.Product.InStock {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
