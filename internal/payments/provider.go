package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/storefront/api/internal/payments")

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payer has not approved the payment yet.
	StatusPending Status = "pending"
	// StatusApproved indicates the payer approved the payment and it still has to be captured.
	StatusApproved Status = "approved"
	// StatusSucceeded indicates the provider reports the funds as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the payment was voided or cancelled.
	StatusFailed Status = "failed"
)

const (
	ProviderPayPal = "paypal"
	ProviderStripe = "stripe"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidWebhook is returned when a webhook signature or payload cannot be verified.
	ErrInvalidWebhook = errors.New("payments: invalid webhook")
)

// LineItem describes a single line to show on the provider's approval page.
type LineItem struct {
	Name      string
	SKU       string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// IntentRequest captures the payload required to create a payment intent for an amount.
type IntentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Reference      string
	Description    string
	ReturnURL      string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
	Items          []LineItem
}

// Intent is the provider-side record the payer approves.
type Intent struct {
	ID          string
	Provider    string
	ApprovalURL string
	Status      Status
	ExpiresAt   time.Time
}

// LookupRequest identifies an intent to fetch for reconciliation.
type LookupRequest struct {
	IntentID string
}

// CaptureRequest captures an approved intent.
type CaptureRequest struct {
	IntentID       string
	IdempotencyKey string
}

// PaymentDetails normalises provider specific fields.
type PaymentDetails struct {
	Provider   string
	IntentID   string
	Status     Status
	Amount     decimal.Decimal
	Currency   string
	CapturedAt *time.Time
	Raw        map[string]any
}

// WebhookEvent is a verified provider notification reduced to the intent it concerns.
type WebhookEvent struct {
	ID       string
	Type     string
	Provider string
	IntentID string
	// Relevant is false for event types that never settle an intent.
	Relevant bool
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
	Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error)
}

// WebhookParser verifies and decodes provider notifications.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, header http.Header, body []byte) (WebhookEvent, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap[ProviderPayPal]; ok {
		m.defaultProvider = ProviderPayPal
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

// Has reports whether a provider is registered under name.
func (m *Manager) Has(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.providers[strings.TrimSpace(strings.ToLower(name))]
	return ok
}

// Names lists registered providers in a stable order: paypal first, then stripe, then the rest.
func (m *Manager) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.providers))
	for _, known := range []string{ProviderPayPal, ProviderStripe} {
		if _, ok := m.providers[known]; ok {
			names = append(names, known)
		}
	}
	for key := range m.providers {
		if key != ProviderPayPal && key != ProviderStripe {
			names = append(names, key)
		}
	}
	return names
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateIntent delegates to the resolved provider.
func (m *Manager) CreateIntent(ctx context.Context, paymentCtx PaymentContext, req IntentRequest) (Intent, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Intent{}, err
	}
	ctx, span := startSpan(ctx, "payments.CreateIntent", key)
	defer span.End()
	intent, err := provider.CreateIntent(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// Capture delegates to the resolved provider.
func (m *Manager) Capture(ctx context.Context, paymentCtx PaymentContext, req CaptureRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	ctx, span := startSpan(ctx, "payments.Capture", key)
	defer span.End()
	details, err := provider.Capture(ctx, req)
	recordSpanError(span, err)
	return details, err
}

// LookupPayment delegates to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, paymentCtx PaymentContext, req LookupRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	ctx, span := startSpan(ctx, "payments.LookupPayment", key)
	defer span.End()
	details, err := provider.LookupPayment(ctx, req)
	recordSpanError(span, err)
	return details, err
}

// ParseWebhook verifies a notification with the named provider. Providers that cannot parse
// webhooks report ErrUnsupportedProvider.
func (m *Manager) ParseWebhook(ctx context.Context, providerName string, header http.Header, body []byte) (WebhookEvent, error) {
	key, provider, err := m.resolveProvider(PaymentContext{PreferredProvider: providerName})
	if err != nil {
		return WebhookEvent{}, err
	}
	parser, ok := provider.(WebhookParser)
	if !ok {
		return WebhookEvent{}, fmt.Errorf("%w: %s does not accept webhooks", ErrUnsupportedProvider, key)
	}
	event, err := parser.ParseWebhook(ctx, header, body)
	if err != nil {
		return WebhookEvent{}, err
	}
	event.Provider = key
	return event, nil
}

func startSpan(ctx context.Context, name, provider string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("payments.provider", provider)))
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
