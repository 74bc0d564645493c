package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/repositories/memory"
)

var fixtureNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixtureNow }

func dec(value string) decimal.Decimal { return decimal.RequireFromString(value) }

type shopFixture struct {
	t        *testing.T
	registry *memory.Registry
	orders   OrderService
	stock    StockAdjuster
	pricer   Pricer
	gateway  *fakeGateway
	events   *recordingPublisher
	metrics  *recordingMetrics

	// Optional wrappers around the registry repositories.
	accountRepo repositories.AccountRepository
	orderRepo   repositories.OrderRepository
}

func newShopFixture(t *testing.T) *shopFixture {
	t.Helper()
	registry := memory.NewRegistry(fixedClock)
	orderSvc, err := NewOrderService(OrderServiceDeps{Orders: registry.Orders(), Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	stock, err := NewStockAdjuster(registry.Products(), nil)
	if err != nil {
		t.Fatalf("NewStockAdjuster: %v", err)
	}
	pricer, err := NewPricer(registry.Products())
	if err != nil {
		t.Fatalf("NewPricer: %v", err)
	}
	return &shopFixture{
		t:        t,
		registry: registry,
		orders:   orderSvc,
		stock:    stock,
		pricer:   pricer,
		gateway:  newFakeGateway(),
		events:   &recordingPublisher{},
		metrics:  &recordingMetrics{},
	}
}

func (f *shopFixture) account(id string, status domain.AccountStatus, balance string) Account {
	f.t.Helper()
	account, err := f.registry.Accounts().Create(context.Background(), domain.Account{
		ID:            id,
		Email:         id + "@example.com",
		Name:          id,
		Status:        status,
		Role:          domain.RoleCustomer,
		WalletBalance: dec(balance),
	})
	if err != nil {
		f.t.Fatalf("seed account: %v", err)
	}
	return account
}

func (f *shopFixture) product(id, price string, stock int) Product {
	f.t.Helper()
	product, err := f.registry.Products().Upsert(context.Background(), domain.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: dec(price),
		Stock: stock,
	})
	if err != nil {
		f.t.Fatalf("seed product: %v", err)
	}
	return product
}

func (f *shopFixture) cart(accountID string, items ...CartItem) {
	f.t.Helper()
	if _, err := f.registry.Carts().Save(context.Background(), domain.Cart{AccountID: accountID, Items: items}); err != nil {
		f.t.Fatalf("seed cart: %v", err)
	}
}

func (f *shopFixture) stockOf(productID string) int {
	f.t.Helper()
	product, err := f.registry.Products().Get(context.Background(), productID)
	if err != nil {
		f.t.Fatalf("load product: %v", err)
	}
	return product.Stock
}

func (f *shopFixture) balanceOf(accountID string) decimal.Decimal {
	f.t.Helper()
	account, err := f.registry.Accounts().Get(context.Background(), accountID)
	if err != nil {
		f.t.Fatalf("load account: %v", err)
	}
	return account.WalletBalance
}

func (f *shopFixture) cartSize(accountID string) int {
	f.t.Helper()
	cart, err := f.registry.Carts().Get(context.Background(), accountID)
	if err != nil {
		f.t.Fatalf("load cart: %v", err)
	}
	return len(cart.Items)
}

func (f *shopFixture) accountStore() repositories.AccountRepository {
	if f.accountRepo != nil {
		return f.accountRepo
	}
	return f.registry.Accounts()
}

func (f *shopFixture) orderStore() repositories.OrderRepository {
	if f.orderRepo != nil {
		return f.orderRepo
	}
	return f.registry.Orders()
}

func (f *shopFixture) checkout() CheckoutService {
	f.t.Helper()
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Accounts:  f.accountStore(),
		Carts:     f.registry.Carts(),
		Orders:    f.orderStore(),
		OrderSvc:  f.orders,
		Pricer:    f.pricer,
		Stock:     f.stock,
		Events:    f.events,
		Metrics:   f.metrics,
		ReturnURL: "https://shop.test/return",
		CancelURL: "https://shop.test/cancel",
		Clock:     fixedClock,
		gateway:   f.gateway,
	})
	if err != nil {
		f.t.Fatalf("NewCheckoutService: %v", err)
	}
	return svc
}

func (f *shopFixture) payments(maxTopUp string) PaymentService {
	f.t.Helper()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   f.orderStore(),
		Accounts: f.accountStore(),
		Carts:    f.registry.Carts(),
		OrderSvc: f.orders,
		Stock:    f.stock,
		Events:   f.events,
		Metrics:  f.metrics,
		MaxTopUp: dec(maxTopUp),
		Clock:    fixedClock,
		gateway:  f.gateway,
	})
	if err != nil {
		f.t.Fatalf("NewPaymentService: %v", err)
	}
	return svc
}

// flakyAccounts fails the next creditFailures wallet credits.
type flakyAccounts struct {
	repositories.AccountRepository
	creditFailures int
}

func (a *flakyAccounts) CreditWallet(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Account, error) {
	if a.creditFailures > 0 {
		a.creditFailures--
		return domain.Account{}, errors.New("unavailable")
	}
	return a.AccountRepository.CreditWallet(ctx, accountID, amount)
}

// failingCompletion rejects every payment completion.
type failingCompletion struct {
	repositories.OrderRepository
}

func (failingCompletion) MarkPaymentCompleted(context.Context, string, time.Time) (domain.Order, bool, error) {
	return domain.Order{}, false, errors.New("unavailable")
}

// fakeGateway records intents and reports whatever status the test assigns to them.
type fakeGateway struct {
	mu        sync.Mutex
	providers []string
	statuses  map[string]payments.Status
	amounts   map[string]decimal.Decimal
	currency  map[string]string
	captures  int
	lookups   int
	requests  []payments.IntentRequest
	nextID    int

	createErr  error
	lookupErr  error
	webhookErr error
	webhook    payments.WebhookEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		providers: []string{payments.ProviderPayPal, payments.ProviderStripe},
		statuses:  map[string]payments.Status{},
		amounts:   map[string]decimal.Decimal{},
		currency:  map[string]string{},
	}
}

func (g *fakeGateway) setStatus(intentID string, status payments.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[intentID] = status
}

func (g *fakeGateway) CreateIntent(_ context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payments.Intent{}, g.createErr
	}
	g.nextID++
	id := fmt.Sprintf("%s-intent-%d", paymentCtx.PreferredProvider, g.nextID)
	g.statuses[id] = payments.StatusPending
	g.amounts[id] = req.Amount
	g.requests = append(g.requests, req)
	return payments.Intent{
		ID:          id,
		Provider:    paymentCtx.PreferredProvider,
		ApprovalURL: "https://psp.test/approve/" + id,
		Status:      payments.StatusPending,
	}, nil
}

func (g *fakeGateway) LookupPayment(_ context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	if g.lookupErr != nil {
		return payments.PaymentDetails{}, g.lookupErr
	}
	return payments.PaymentDetails{
		Provider: paymentCtx.PreferredProvider,
		IntentID: req.IntentID,
		Status:   g.statuses[req.IntentID],
		Amount:   g.amounts[req.IntentID],
		Currency: g.currency[req.IntentID],
	}, nil
}

func (g *fakeGateway) Capture(_ context.Context, paymentCtx payments.PaymentContext, req payments.CaptureRequest) (payments.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captures++
	if g.statuses[req.IntentID] != payments.StatusApproved {
		return payments.PaymentDetails{}, errors.New("intent not approved")
	}
	g.statuses[req.IntentID] = payments.StatusSucceeded
	return payments.PaymentDetails{
		Provider: paymentCtx.PreferredProvider,
		IntentID: req.IntentID,
		Status:   payments.StatusSucceeded,
		Amount:   g.amounts[req.IntentID],
		Currency: g.currency[req.IntentID],
	}, nil
}

func (g *fakeGateway) ParseWebhook(_ context.Context, provider string, _ http.Header, _ []byte) (payments.WebhookEvent, error) {
	if g.webhookErr != nil {
		return payments.WebhookEvent{}, g.webhookErr
	}
	event := g.webhook
	event.Provider = provider
	return event, nil
}

func (g *fakeGateway) Has(name string) bool {
	for _, provider := range g.providers {
		if provider == name {
			return true
		}
	}
	return false
}

func (g *fakeGateway) Names() []string { return append([]string(nil), g.providers...) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []DomainEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event DomainEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return event.ID, nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, event := range p.events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *recordingMetrics) RecordSettlement(provider, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[provider+"/"+outcome]++
}

func (m *recordingMetrics) get(provider, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[provider+"/"+outcome]
}

func expectKind(t *testing.T, err, kind error, message string) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	if message == "" {
		return
	}
	svcErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected service error, got %T", err)
	}
	if svcErr.Message != message {
		t.Fatalf("expected message %q, got %q", message, svcErr.Message)
	}
}
