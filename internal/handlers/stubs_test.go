package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/services"
)

type stubResolver struct {
	resolveFunc func(ctx context.Context, cmd services.ResolveCommand) (services.ResolvedAccount, error)
}

func (s *stubResolver) Resolve(ctx context.Context, cmd services.ResolveCommand) (services.ResolvedAccount, error) {
	return s.resolveFunc(ctx, cmd)
}

type stubCartService struct {
	getFunc    func(ctx context.Context, accountID string) (services.CartView, error)
	addFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error)
	updateFunc func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error)
	removeFunc func(ctx context.Context, accountID, productID string) (services.CartView, error)
	clearFunc  func(ctx context.Context, accountID string) error
}

func (s *stubCartService) GetCart(ctx context.Context, accountID string) (services.CartView, error) {
	return s.getFunc(ctx, accountID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	return s.addFunc(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
	return s.updateFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, accountID, productID string) (services.CartView, error) {
	return s.removeFunc(ctx, accountID, productID)
}

func (s *stubCartService) ClearCart(ctx context.Context, accountID string) error {
	return s.clearFunc(ctx, accountID)
}

type stubCheckoutService struct {
	checkoutFunc func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	return s.checkoutFunc(ctx, cmd)
}

type stubPaymentService struct {
	confirmFunc   func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.SettlementResult, error)
	webhookFunc   func(ctx context.Context, cmd services.WebhookCommand) (services.SettlementResult, error)
	topUpFunc     func(ctx context.Context, cmd services.TopUpCommand) (services.TopUpResult, error)
	reconcileFunc func(ctx context.Context, olderThan time.Duration) (services.ReconcileReport, error)
}

func (s *stubPaymentService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.SettlementResult, error) {
	return s.confirmFunc(ctx, cmd)
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, cmd services.WebhookCommand) (services.SettlementResult, error) {
	return s.webhookFunc(ctx, cmd)
}

func (s *stubPaymentService) TopUpWallet(ctx context.Context, cmd services.TopUpCommand) (services.TopUpResult, error) {
	return s.topUpFunc(ctx, cmd)
}

func (s *stubPaymentService) ReconcilePending(ctx context.Context, olderThan time.Duration) (services.ReconcileReport, error) {
	return s.reconcileFunc(ctx, olderThan)
}

type stubOrderService struct {
	getFunc    func(ctx context.Context, viewer services.Viewer, orderID string) (services.Order, error)
	listMyFunc func(ctx context.Context, accountID string) ([]services.Order, error)
	listFunc   func(ctx context.Context, filter services.OrderListFilter) ([]services.Order, error)
	updateFunc func(ctx context.Context, cmd services.UpdateFulfillmentCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(context.Context, services.CreateOrderCommand) (services.Order, error) {
	panic("not used by handlers")
}

func (s *stubOrderService) UpdateFulfillmentStatus(ctx context.Context, cmd services.UpdateFulfillmentCommand) (services.Order, error) {
	return s.updateFunc(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, viewer services.Viewer, orderID string) (services.Order, error) {
	return s.getFunc(ctx, viewer, orderID)
}

func (s *stubOrderService) ListMyOrders(ctx context.Context, accountID string) ([]services.Order, error) {
	return s.listMyFunc(ctx, accountID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) ([]services.Order, error) {
	return s.listFunc(ctx, filter)
}

type stubAuthService struct {
	registerFunc func(ctx context.Context, cmd services.RegisterCommand) (services.RegistrationResult, error)
	loginFunc    func(ctx context.Context, cmd services.LoginCommand) (services.LoginResult, error)
	verifyFunc   func(ctx context.Context, token string) (services.AccountView, error)
	meFunc       func(ctx context.Context, accountID string) (services.AccountView, error)
}

func (s *stubAuthService) Register(ctx context.Context, cmd services.RegisterCommand) (services.RegistrationResult, error) {
	return s.registerFunc(ctx, cmd)
}

func (s *stubAuthService) Login(ctx context.Context, cmd services.LoginCommand) (services.LoginResult, error) {
	return s.loginFunc(ctx, cmd)
}

func (s *stubAuthService) VerifyEmail(ctx context.Context, token string) (services.AccountView, error) {
	return s.verifyFunc(ctx, token)
}

func (s *stubAuthService) Me(ctx context.Context, accountID string) (services.AccountView, error) {
	return s.meFunc(ctx, accountID)
}

type stubAccountAdminService struct {
	updateFunc func(ctx context.Context, accountID, status string) (services.AccountView, error)
}

func (s *stubAccountAdminService) UpdateStatus(ctx context.Context, accountID, status string) (services.AccountView, error) {
	return s.updateFunc(ctx, accountID, status)
}

type stubWishlistService struct {
	listFunc   func(ctx context.Context, accountID string) ([]services.Product, error)
	addFunc    func(ctx context.Context, accountID, productID string) ([]services.Product, error)
	removeFunc func(ctx context.Context, accountID, productID string) ([]services.Product, error)
}

func (s *stubWishlistService) List(ctx context.Context, accountID string) ([]services.Product, error) {
	return s.listFunc(ctx, accountID)
}

func (s *stubWishlistService) Add(ctx context.Context, accountID, productID string) ([]services.Product, error) {
	return s.addFunc(ctx, accountID, productID)
}

func (s *stubWishlistService) Remove(ctx context.Context, accountID, productID string) ([]services.Product, error) {
	return s.removeFunc(ctx, accountID, productID)
}

type stubCatalogService struct {
	listFunc   func(ctx context.Context, filter repositories.ProductFilter) ([]services.Product, error)
	getFunc    func(ctx context.Context, productID string) (services.Product, error)
	upsertFunc func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter repositories.ProductFilter) ([]services.Product, error) {
	return s.listFunc(ctx, filter)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	return s.getFunc(ctx, productID)
}

func (s *stubCatalogService) UpsertProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	return s.upsertFunc(ctx, cmd)
}

type stubReviewService struct {
	createFunc func(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error)
	listFunc   func(ctx context.Context, filter repositories.ReviewFilter) ([]services.Review, error)
	getFunc    func(ctx context.Context, reviewID string) (services.Review, error)
	deleteFunc func(ctx context.Context, actor services.Viewer, reviewID string) error
}

func (s *stubReviewService) Create(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
	return s.createFunc(ctx, cmd)
}

func (s *stubReviewService) List(ctx context.Context, filter repositories.ReviewFilter) ([]services.Review, error) {
	return s.listFunc(ctx, filter)
}

func (s *stubReviewService) Get(ctx context.Context, reviewID string) (services.Review, error) {
	return s.getFunc(ctx, reviewID)
}

func (s *stubReviewService) Delete(ctx context.Context, actor services.Viewer, reviewID string) error {
	return s.deleteFunc(ctx, actor, reviewID)
}

type stubCategoryService struct {
	listFunc   func(ctx context.Context) ([]services.Category, error)
	getFunc    func(ctx context.Context, categoryID string) (services.Category, error)
	upsertFunc func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error)
}

func (s *stubCategoryService) List(ctx context.Context) ([]services.Category, error) {
	return s.listFunc(ctx)
}

func (s *stubCategoryService) Get(ctx context.Context, categoryID string) (services.Category, error) {
	return s.getFunc(ctx, categoryID)
}

func (s *stubCategoryService) Upsert(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
	return s.upsertFunc(ctx, cmd)
}

var (
	_ services.AccountResolver     = (*stubResolver)(nil)
	_ services.CartService         = (*stubCartService)(nil)
	_ services.CheckoutService     = (*stubCheckoutService)(nil)
	_ services.PaymentService      = (*stubPaymentService)(nil)
	_ services.OrderService        = (*stubOrderService)(nil)
	_ services.AuthService         = (*stubAuthService)(nil)
	_ services.AccountAdminService = (*stubAccountAdminService)(nil)
	_ services.WishlistService     = (*stubWishlistService)(nil)
	_ services.CatalogService      = (*stubCatalogService)(nil)
	_ services.ReviewService       = (*stubReviewService)(nil)
	_ services.CategoryService     = (*stubCategoryService)(nil)
)

func withIdentity(ctx context.Context, accountID, role string) context.Context {
	return auth.WithIdentity(ctx, &auth.Identity{AccountID: accountID, Role: role})
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return env
}
