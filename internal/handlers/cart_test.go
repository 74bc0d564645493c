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

func TestCartHandlersGuestCreatedOnFirstRead(t *testing.T) {
	resolver := &stubResolver{
		resolveFunc: func(ctx context.Context, cmd services.ResolveCommand) (services.ResolvedAccount, error) {
			if cmd.Credential != "" || !cmd.AllowGuest {
				t.Fatalf("unexpected resolve command %+v", cmd)
			}
			return services.ResolvedAccount{
				Account:      domain.Account{ID: "guest-1", Status: domain.AccountStatusGuest, Role: domain.RoleCustomer},
				Credential:   "guest-token",
				GuestCreated: true,
			}, nil
		},
	}
	carts := &stubCartService{
		getFunc: func(ctx context.Context, accountID string) (services.CartView, error) {
			if accountID != "guest-1" {
				t.Fatalf("expected guest-1, got %s", accountID)
			}
			return services.CartView{AccountID: accountID, Subtotal: decimal.Zero}, nil
		},
	}

	router := chi.NewRouter()
	NewCartHandlers(resolver, carts).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get(auth.IssuedGuestTokenHeader); got != "guest-token" {
		t.Fatalf("expected issued guest token header, got %q", got)
	}
	var payload cartPayload
	env := decodeEnvelope(t, rr, &payload)
	if env.Status != "success" || payload.AccountID != "guest-1" || payload.Subtotal != "0.00" {
		t.Fatalf("unexpected payload %+v %+v", env, payload)
	}
	if payload.Token != "guest-token" || !payload.IsGuestCreated {
		t.Fatalf("expected guest credential in payload, got token %q created %v", payload.Token, payload.IsGuestCreated)
	}
}

func TestCartHandlersExistingCredentialNotReissued(t *testing.T) {
	resolver := &stubResolver{
		resolveFunc: func(ctx context.Context, cmd services.ResolveCommand) (services.ResolvedAccount, error) {
			if cmd.Credential != "abc" {
				t.Fatalf("expected bearer credential, got %q", cmd.Credential)
			}
			return services.ResolvedAccount{Account: domain.Account{ID: "acc-1"}, Credential: "abc"}, nil
		},
	}
	var captured services.AddCartItemCommand
	carts := &stubCartService{
		addFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			captured = cmd
			price := decimal.RequireFromString("2.50")
			return services.CartView{
				AccountID: cmd.AccountID,
				Lines: []services.CartLineView{{
					ProductID: cmd.ProductID,
					Name:      "Tea",
					UnitPrice: price,
					Quantity:  cmd.Quantity,
					LineTotal: price.Mul(decimal.NewFromInt(int64(cmd.Quantity))),
					Available: true,
				}},
				Subtotal: price.Mul(decimal.NewFromInt(int64(cmd.Quantity))),
			}, nil
		},
	}

	router := chi.NewRouter()
	NewCartHandlers(resolver, carts).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"productId":" p-1 ","quantity":3}`))
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(auth.IssuedGuestTokenHeader) != "" {
		t.Fatalf("did not expect an issued guest token header")
	}
	if captured.AccountID != "acc-1" || captured.ProductID != "p-1" || captured.Quantity != 3 {
		t.Fatalf("unexpected command %+v", captured)
	}
	var payload cartPayload
	decodeEnvelope(t, rr, &payload)
	if payload.ItemsCount != 3 || payload.Subtotal != "7.50" || payload.Items[0].LineTotal != "7.50" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Token != "abc" || payload.IsGuestCreated {
		t.Fatalf("expected existing credential echoed without guest flag, got %+v", payload)
	}
}

func TestCartHandlersAddRequiresQuantity(t *testing.T) {
	carts := &stubCartService{
		addFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			t.Fatalf("add must not run without a quantity")
			return services.CartView{}, nil
		},
	}
	router := chi.NewRouter()
	NewCartHandlers(nil, carts).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"productId":"p-1"}`))
	req = req.WithContext(withIdentity(req.Context(), "acc-1", auth.RoleCustomer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	env := decodeEnvelope(t, rr, nil)
	if env.Error != "invalid_quantity" || env.Message != "quantity must be a positive number" {
		t.Fatalf("unexpected error envelope %+v", env)
	}
}

func TestCartHandlersUpdateRejectsUnresolvedCredential(t *testing.T) {
	resolver := &stubResolver{
		resolveFunc: func(ctx context.Context, cmd services.ResolveCommand) (services.ResolvedAccount, error) {
			if cmd.AllowGuest {
				t.Fatalf("updates must not create guests")
			}
			return services.ResolvedAccount{}, &services.Error{Kind: services.ErrUnauthorized, Code: "unauthenticated", Message: "authentication required"}
		},
	}
	router := chi.NewRouter()
	NewCartHandlers(resolver, &stubCartService{}).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/p-1", bytes.NewBufferString(`{"quantity":2}`)))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateMapsServiceErrors(t *testing.T) {
	carts := &stubCartService{
		updateFunc: func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
			if cmd.ProductID != "p-9" || cmd.Quantity != 5 {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.CartView{}, &services.Error{Kind: services.ErrBadRequest, Code: "insufficient_stock", Message: "Only 2 left in stock"}
		},
	}
	router := chi.NewRouter()
	NewCartHandlers(nil, carts).Routes(router)

	req := httptest.NewRequest(http.MethodPatch, "/p-9", bytes.NewBufferString(`{"quantity":5}`))
	req = req.WithContext(withIdentity(req.Context(), "acc-1", auth.RoleCustomer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	env := decodeEnvelope(t, rr, nil)
	if env.Status != "fail" || env.Error != "insufficient_stock" || env.Message != "Only 2 left in stock" {
		t.Fatalf("unexpected error envelope %+v", env)
	}
}

func TestCartHandlersUpdateRequiresQuantity(t *testing.T) {
	router := chi.NewRouter()
	NewCartHandlers(nil, &stubCartService{}).Routes(router)

	req := httptest.NewRequest(http.MethodPatch, "/p-1", bytes.NewBufferString(`{}`))
	req = req.WithContext(withIdentity(req.Context(), "acc-1", auth.RoleCustomer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveAndClear(t *testing.T) {
	var removed, cleared string
	carts := &stubCartService{
		removeFunc: func(ctx context.Context, accountID, productID string) (services.CartView, error) {
			removed = productID
			return services.CartView{AccountID: accountID}, nil
		},
		clearFunc: func(ctx context.Context, accountID string) error {
			cleared = accountID
			return nil
		},
	}
	router := chi.NewRouter()
	NewCartHandlers(nil, carts).Routes(router)

	req := httptest.NewRequest(http.MethodDelete, "/p-2", nil)
	req = req.WithContext(withIdentity(req.Context(), "acc-1", auth.RoleCustomer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || removed != "p-2" {
		t.Fatalf("expected removal of p-2, got %d %q", rr.Code, removed)
	}

	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	req = req.WithContext(withIdentity(req.Context(), "acc-1", auth.RoleCustomer))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || cleared != "acc-1" {
		t.Fatalf("expected cart cleared, got %d %q", rr.Code, cleared)
	}
}

func TestCartHandlersRejectsOversizedBody(t *testing.T) {
	router := chi.NewRouter()
	NewCartHandlers(nil, &stubCartService{}).Routes(router)

	body := bytes.Repeat([]byte("a"), maxCartBodySize+10)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req = req.WithContext(withIdentity(req.Context(), "acc-1", auth.RoleCustomer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}
}
