package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultRequestTimeout       = 30 * time.Second
	defaultEnvironment          = "local"
	defaultStorageBackend       = StorageBackendFirestore
	defaultTokenIssuer          = "storefront-api"
	defaultTokenTTL             = 30 * 24 * time.Hour
	defaultVerificationTTL      = 48 * time.Hour
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer           = "https://accounts.google.com"
	defaultPayPalBaseURL        = "https://api-m.sandbox.paypal.com"
	defaultCurrency             = "USD"
	defaultProductCacheTTL      = 5 * time.Minute
	defaultEventsBackend        = EventsBackendLog
	defaultEventsTopic          = "storefront-events"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultMaxTopUp             = "10000"
	defaultReconcileAge         = 15 * time.Minute
)

// Storage backends understood by the loader.
const (
	StorageBackendFirestore = "firestore"
	StorageBackendMemory    = "memory"
)

// Event publisher backends understood by the loader.
const (
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
	EventsBackendLog    = "log"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Firestore   FirestoreConfig
	Auth        AuthConfig
	Security    SecurityConfig
	PSP         PSPConfig
	Redis       RedisConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
	Wallet      WalletConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	Version        string
	MetricsEnabled bool
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AuthConfig controls the credentials issued to shoppers.
type AuthConfig struct {
	TokenSecret     string
	Issuer          string
	TokenTTL        time.Duration
	VerificationTTL time.Duration
}

// SecurityConfig groups environment and server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// DevelopmentMode reports whether internal error details may be exposed to clients.
func (c SecurityConfig) DevelopmentMode() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "local", "development", "dev":
		return true
	}
	return false
}

// OIDCConfig controls Google-signed token verification for internal endpoints.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
	// ServiceAccounts restricts callers to these service account emails when set.
	ServiceAccounts []string
}

// PSPConfig collects settings for payment providers.
type PSPConfig struct {
	Currency            string
	ReturnURL           string
	CancelURL           string
	PayPalClientID      string
	PayPalSecret        string
	PayPalBaseURL       string
	PayPalWebhookID     string
	StripeAPIKey        string
	StripeWebhookSecret string
}

// PayPalEnabled reports whether PayPal credentials are present.
func (c PSPConfig) PayPalEnabled() bool {
	return strings.TrimSpace(c.PayPalClientID) != "" && strings.TrimSpace(c.PayPalSecret) != ""
}

// StripeEnabled reports whether a Stripe API key is present.
func (c PSPConfig) StripeEnabled() bool {
	return strings.TrimSpace(c.StripeAPIKey) != ""
}

// RedisConfig configures the shared Redis client. An empty Addr disables Redis.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	ProductCacheTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// EventsConfig selects where domain events are published.
type EventsConfig struct {
	Backend      string
	ProjectID    string
	Topic        string
	KafkaBrokers []string
	KafkaTopic   string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// WalletConfig bounds wallet operations.
type WalletConfig struct {
	MaxTopUp     decimal.Decimal
	ReconcileAge time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader (e.g. "Auth.TokenSecret").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers can use the result to initialise
// dependencies such as the secret fetcher before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	src, err := newSource(options)
	if err != nil {
		return nil, err
	}
	return src.values(), nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	if options.secret == nil {
		options.secret = SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		})
	}

	src, err := newSource(options)
	if err != nil {
		return Config{}, err
	}

	var invalid []string
	maxTopUp, err := decimal.NewFromString(src.str("API_WALLET_MAX_TOP_UP", defaultMaxTopUp))
	if err != nil {
		invalid = append(invalid, "Wallet.MaxTopUp")
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           src.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:    src.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   src.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    src.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: src.duration("API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			Version:        src.str("API_SERVER_VERSION", ""),
			MetricsEnabled: src.boolean("API_SERVER_METRICS_ENABLED", true),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(src.str("API_STORAGE_BACKEND", defaultStorageBackend)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: src.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			TokenSecret:     src.str("API_AUTH_TOKEN_SECRET", ""),
			Issuer:          src.str("API_AUTH_TOKEN_ISSUER", defaultTokenIssuer),
			TokenTTL:        src.duration("API_AUTH_TOKEN_TTL", defaultTokenTTL),
			VerificationTTL: src.duration("API_AUTH_VERIFICATION_TTL", defaultVerificationTTL),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(src.str("API_SECURITY_ENVIRONMENT", defaultEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  src.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: src.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  src.csv("API_SECURITY_OIDC_ISSUERS"),
				// Cloud Scheduler's invoker account is the usual entry.
				ServiceAccounts: src.csv("API_SECURITY_OIDC_SERVICE_ACCOUNTS"),
			},
		},
		PSP: PSPConfig{
			Currency:            strings.ToUpper(src.str("API_PSP_CURRENCY", defaultCurrency)),
			ReturnURL:           src.str("API_PSP_RETURN_URL", ""),
			CancelURL:           src.str("API_PSP_CANCEL_URL", ""),
			PayPalClientID:      src.str("API_PSP_PAYPAL_CLIENT_ID", ""),
			PayPalSecret:        src.str("API_PSP_PAYPAL_SECRET", ""),
			PayPalBaseURL:       strings.TrimRight(src.str("API_PSP_PAYPAL_BASE_URL", defaultPayPalBaseURL), "/"),
			PayPalWebhookID:     src.str("API_PSP_PAYPAL_WEBHOOK_ID", ""),
			StripeAPIKey:        src.str("API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: src.str("API_PSP_STRIPE_WEBHOOK_SECRET", ""),
		},
		Redis: RedisConfig{
			Addr:            src.str("API_REDIS_ADDR", ""),
			Password:        src.str("API_REDIS_PASSWORD", ""),
			DB:              src.integer("API_REDIS_DB", 0),
			ProductCacheTTL: src.duration("API_REDIS_PRODUCT_CACHE_TTL", defaultProductCacheTTL),
		},
		Events: EventsConfig{
			Backend:      strings.ToLower(src.str("API_EVENTS_BACKEND", defaultEventsBackend)),
			ProjectID:    src.str("API_EVENTS_PROJECT_ID", ""),
			Topic:        src.str("API_EVENTS_TOPIC", defaultEventsTopic),
			KafkaBrokers: src.csv("API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:   src.str("API_EVENTS_KAFKA_TOPIC", defaultEventsTopic),
		},
		Idempotency: IdempotencyConfig{
			Header:           src.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              src.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  src.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: src.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Wallet: WalletConfig{
			MaxTopUp:     maxTopUp,
			ReconcileAge: src.duration("API_WALLET_RECONCILE_AGE", defaultReconcileAge),
		},
	}

	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Auth.TokenSecret", &cfg.Auth.TokenSecret},
		{"PSP.PayPalSecret", &cfg.PSP.PayPalSecret},
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	fields := append([]string(nil), invalid...)
	add := func(cond bool, name string) {
		if cond {
			fields = append(fields, name)
		}
	}

	add(cfg.Server.Port == "", "Server.Port")
	add(cfg.Server.RequestTimeout <= 0, "Server.RequestTimeout")

	switch cfg.Storage.Backend {
	case StorageBackendFirestore:
		add(cfg.Firestore.ProjectID == "", "Firestore.ProjectID")
	case StorageBackendMemory:
	default:
		fields = append(fields, "Storage.Backend")
	}

	add(strings.TrimSpace(cfg.Auth.TokenSecret) == "", "Auth.TokenSecret")
	add(cfg.Auth.TokenTTL <= 0, "Auth.TokenTTL")
	add(cfg.Auth.VerificationTTL <= 0, "Auth.VerificationTTL")

	add(len(cfg.PSP.Currency) != 3, "PSP.Currency")

	switch cfg.Events.Backend {
	case EventsBackendPubSub:
		add(cfg.Events.ProjectID == "", "Events.ProjectID")
		add(cfg.Events.Topic == "", "Events.Topic")
	case EventsBackendKafka:
		add(len(cfg.Events.KafkaBrokers) == 0, "Events.KafkaBrokers")
		add(cfg.Events.KafkaTopic == "", "Events.KafkaTopic")
	case EventsBackendLog:
	default:
		fields = append(fields, "Events.Backend")
	}

	add(strings.TrimSpace(cfg.Idempotency.Header) == "", "Idempotency.Header")
	add(cfg.Idempotency.TTL <= 0, "Idempotency.TTL")
	add(cfg.Idempotency.CleanupInterval <= 0, "Idempotency.CleanupInterval")
	add(cfg.Idempotency.CleanupBatchSize <= 0, "Idempotency.CleanupBatchSize")

	add(!cfg.Wallet.MaxTopUp.IsPositive() && !containsField(invalid, "Wallet.MaxTopUp"), "Wallet.MaxTopUp")
	add(cfg.Wallet.ReconcileAge <= 0, "Wallet.ReconcileAge")

	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func containsField(fields []string, name string) bool {
	for _, field := range fields {
		if field == name {
			return true
		}
	}
	return false
}
