package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// PayPalSandboxURL is the default REST base URL.
	PayPalSandboxURL = "https://api-m.sandbox.paypal.com"

	paypalEventOrderApproved   = "CHECKOUT.ORDER.APPROVED"
	paypalEventCaptureComplete = "PAYMENT.CAPTURE.COMPLETED"
)

// PayPalProviderConfig configures the PayPalProvider.
type PayPalProviderConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	// WebhookID enables signature verification through the verify-webhook-signature API.
	WebhookID  string
	HTTPClient *http.Client
	Logger     func(ctx context.Context, event string, fields map[string]any)
	Clock      func() time.Time
}

// PayPalProvider implements Provider against the PayPal Orders v2 REST API. A PayPal order id is
// the intent id.
type PayPalProvider struct {
	baseURL   string
	webhookID string
	client    *http.Client
	logger    func(ctx context.Context, event string, fields map[string]any)
	clock     func() time.Time
}

var (
	_ Provider      = (*PayPalProvider)(nil)
	_ WebhookParser = (*PayPalProvider)(nil)
)

// NewPayPalProvider constructs the provider with an OAuth2 client-credentials token source.
func NewPayPalProvider(cfg PayPalProviderConfig) (*PayPalProvider, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	secret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || secret == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}
	baseURL := strings.TrimRight(defaultString(strings.TrimSpace(cfg.BaseURL), PayPalSandboxURL), "/")

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	oauthCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	credentials := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	client := credentials.Client(oauthCtx)
	client.Timeout = base.Timeout

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &PayPalProvider{
		baseURL:   baseURL,
		webhookID: strings.TrimSpace(cfg.WebhookID),
		client:    client,
		logger:    logger,
		clock:     func() time.Time { return clock().UTC() },
	}, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	Description string       `json:"description,omitempty"`
	Amount      paypalAmount `json:"amount"`
	Payments    *struct {
		Captures []paypalCapture `json:"captures"`
	} `json:"payments,omitempty"`
}

type paypalCapture struct {
	ID         string       `json:"id"`
	Status     string       `json:"status"`
	Amount     paypalAmount `json:"amount"`
	CreateTime string       `json:"create_time"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
	Links         []paypalLink         `json:"links"`
}

type paypalCreateOrder struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext map[string]string    `json:"application_context,omitempty"`
}

// CreateIntent creates a PayPal order with intent CAPTURE and returns its approve link.
func (p *PayPalProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("paypal: provider is nil")
	}
	if !req.Amount.IsPositive() {
		return Intent{}, errors.New("paypal: amount must be positive")
	}
	currency := strings.ToUpper(defaultString(req.Currency, "USD"))
	body := paypalCreateOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: req.Reference,
			Description: req.Description,
			Amount: paypalAmount{
				CurrencyCode: currency,
				Value:        req.Amount.StringFixed(currencyExponent(currency)),
			},
		}},
	}
	appCtx := map[string]string{}
	if req.ReturnURL != "" {
		appCtx["return_url"] = req.ReturnURL
	}
	if req.CancelURL != "" {
		appCtx["cancel_url"] = req.CancelURL
	}
	if len(appCtx) > 0 {
		body.ApplicationContext = appCtx
	}

	var order paypalOrder
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", req.IdempotencyKey, body, &order); err != nil {
		return Intent{}, fmt.Errorf("paypal: create order: %w", err)
	}

	approval := ""
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			approval = link.Href
			break
		}
	}
	if approval == "" {
		return Intent{}, errors.New("paypal: create order: approve link missing")
	}

	p.logger(ctx, "payments.paypal.order.created", map[string]any{
		"paypalOrderId": order.ID,
		"reference":     req.Reference,
		"currency":      currency,
	})
	return Intent{
		ID:          order.ID,
		Provider:    ProviderPayPal,
		ApprovalURL: approval,
		Status:      paypalStatus(order.Status),
		ExpiresAt:   p.clock().Add(3 * time.Hour),
	}, nil
}

// LookupPayment fetches the PayPal order.
func (p *PayPalProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("paypal: provider is nil")
	}
	id := strings.TrimSpace(req.IntentID)
	if id == "" {
		return PaymentDetails{}, errors.New("paypal: intent id is required")
	}
	var order paypalOrder
	if err := p.do(ctx, http.MethodGet, "/v2/checkout/orders/"+id, "", nil, &order); err != nil {
		return PaymentDetails{}, fmt.Errorf("paypal: lookup order: %w", err)
	}
	return paypalPaymentDetails(order), nil
}

// Capture captures an APPROVED order. Capturing a COMPLETED order returns its current state.
func (p *PayPalProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("paypal: provider is nil")
	}
	id := strings.TrimSpace(req.IntentID)
	if id == "" {
		return PaymentDetails{}, errors.New("paypal: intent id is required")
	}
	var order paypalOrder
	err := p.do(ctx, http.MethodPost, "/v2/checkout/orders/"+id+"/capture", req.IdempotencyKey, struct{}{}, &order)
	var apiErr *PayPalAPIError
	if errors.As(err, &apiErr) && apiErr.Name == "UNPROCESSABLE_ENTITY" && apiErr.hasIssue("ORDER_ALREADY_CAPTURED") {
		return p.LookupPayment(ctx, LookupRequest{IntentID: id})
	}
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("paypal: capture order: %w", err)
	}
	p.logger(ctx, "payments.paypal.order.captured", map[string]any{
		"paypalOrderId": order.ID,
		"status":        order.Status,
	})
	return paypalPaymentDetails(order), nil
}

type paypalWebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type paypalWebhookResource struct {
	ID                string `json:"id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// ParseWebhook verifies the transmission when a webhook id is configured and maps
// CHECKOUT.ORDER.APPROVED and PAYMENT.CAPTURE.COMPLETED to the PayPal order id.
func (p *PayPalProvider) ParseWebhook(ctx context.Context, header http.Header, body []byte) (WebhookEvent, error) {
	if p == nil {
		return WebhookEvent{}, errors.New("paypal: provider is nil")
	}
	var event paypalWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: decode event: %v", ErrInvalidWebhook, err)
	}

	if p.webhookID != "" {
		if err := p.verifyWebhook(ctx, header, body); err != nil {
			return WebhookEvent{}, err
		}
	} else {
		p.logger(ctx, "payments.paypal.webhook.unverified", map[string]any{"eventId": event.ID})
	}

	out := WebhookEvent{ID: event.ID, Type: event.EventType, Provider: ProviderPayPal}
	var resource paypalWebhookResource
	if len(event.Resource) > 0 {
		if err := json.Unmarshal(event.Resource, &resource); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: decode resource: %v", ErrInvalidWebhook, err)
		}
	}
	switch event.EventType {
	case paypalEventOrderApproved:
		out.IntentID = resource.ID
	case paypalEventCaptureComplete:
		out.IntentID = resource.SupplementaryData.RelatedIDs.OrderID
	}
	out.Relevant = out.IntentID != ""
	return out, nil
}

func (p *PayPalProvider) verifyWebhook(ctx context.Context, header http.Header, body []byte) error {
	payload := map[string]any{
		"auth_algo":         header.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          header.Get("PAYPAL-CERT-URL"),
		"transmission_id":   header.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  header.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": header.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(body),
	}
	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", "", payload, &result); err != nil {
		return fmt.Errorf("paypal: verify webhook: %w", err)
	}
	if !strings.EqualFold(result.VerificationStatus, "SUCCESS") {
		return fmt.Errorf("%w: paypal verification status %q", ErrInvalidWebhook, result.VerificationStatus)
	}
	return nil
}

// PayPalAPIError is the error body PayPal returns for non-2xx responses.
type PayPalAPIError struct {
	StatusCode int
	Name       string `json:"name"`
	Message    string `json:"message"`
	DebugID    string `json:"debug_id"`
	Details    []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *PayPalAPIError) Error() string {
	return fmt.Sprintf("paypal api %d %s: %s (debug id %s)", e.StatusCode, e.Name, e.Message, e.DebugID)
}

func (e *PayPalAPIError) hasIssue(issue string) bool {
	for _, detail := range e.Details {
		if detail.Issue == issue {
			return true
		}
	}
	return false
}

func (p *PayPalProvider) do(ctx context.Context, method, path, requestID string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID = strings.TrimSpace(requestID); requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &PayPalAPIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func paypalStatus(status string) Status {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return StatusSucceeded
	case "APPROVED":
		return StatusApproved
	case "VOIDED":
		return StatusFailed
	default:
		return StatusPending
	}
}

func paypalPaymentDetails(order paypalOrder) PaymentDetails {
	details := PaymentDetails{
		Provider: ProviderPayPal,
		IntentID: order.ID,
		Status:   paypalStatus(order.Status),
	}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		details.Currency = strings.ToUpper(unit.Amount.CurrencyCode)
		if amount, err := decimal.NewFromString(unit.Amount.Value); err == nil {
			details.Amount = amount
		}
		if unit.Payments != nil {
			for _, capture := range unit.Payments.Captures {
				if capture.Status != "COMPLETED" {
					continue
				}
				if ts, err := time.Parse(time.RFC3339, capture.CreateTime); err == nil {
					ts = ts.UTC()
					details.CapturedAt = &ts
				}
				break
			}
		}
	}
	raw := map[string]any{}
	if data, err := json.Marshal(order); err == nil {
		_ = json.Unmarshal(data, &raw)
	}
	details.Raw = raw
	return details
}
