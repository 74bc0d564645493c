package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func minimalEnv() map[string]string {
	return map[string]string{
		"API_FIRESTORE_PROJECT_ID": "store-dev",
		"API_AUTH_TOKEN_SECRET":    "dev-secret",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(minimalEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if !cfg.Server.MetricsEnabled {
		t.Errorf("expected metrics enabled by default")
	}
	if cfg.Storage.Backend != StorageBackendFirestore {
		t.Errorf("expected firestore backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Events.Backend != EventsBackendLog {
		t.Errorf("expected log events backend, got %s", cfg.Events.Backend)
	}
	if cfg.Events.ProjectID != "store-dev" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Security.Environment != "local" || !cfg.Security.DevelopmentMode() {
		t.Errorf("expected local development environment, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url, got %s", cfg.Security.OIDC.JWKSURL)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultOIDCIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.PSP.Currency != "USD" {
		t.Errorf("expected USD, got %s", cfg.PSP.Currency)
	}
	if cfg.PSP.PayPalEnabled() || cfg.PSP.StripeEnabled() {
		t.Errorf("expected providers disabled without credentials")
	}
	if cfg.Redis.Enabled() {
		t.Errorf("expected redis disabled without address")
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
	if cfg.Wallet.MaxTopUp.String() != "10000" {
		t.Errorf("unexpected max top up %s", cfg.Wallet.MaxTopUp)
	}
	if cfg.Auth.TokenTTL != defaultTokenTTL {
		t.Errorf("unexpected token ttl %s", cfg.Auth.TokenTTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_REQUEST_TIMEOUT":    "10s",
		"API_SERVER_METRICS_ENABLED":    "off",
		"API_STORAGE_BACKEND":           "Memory",
		"API_AUTH_TOKEN_SECRET":         "secret://auth/jwt",
		"API_AUTH_TOKEN_TTL":            "1h",
		"API_SECURITY_ENVIRONMENT":      "prod",
		"API_SECURITY_OIDC_AUDIENCE":    "https://api.example.com",
		"API_SECURITY_OIDC_ISSUERS":     "https://accounts.google.com, https://cloud.google.com/iap",
		"API_PSP_CURRENCY":              "eur",
		"API_PSP_PAYPAL_CLIENT_ID":      "paypal-client",
		"API_PSP_PAYPAL_SECRET":         "secret://paypal/secret",
		"API_PSP_PAYPAL_BASE_URL":       "https://api-m.paypal.com/",
		"API_PSP_STRIPE_API_KEY":        "sm://stripe/api",
		"API_PSP_STRIPE_WEBHOOK_SECRET": "secret://stripe/webhook",
		"API_REDIS_ADDR":                "localhost:6379",
		"API_REDIS_DB":                  "2",
		"API_EVENTS_BACKEND":            "kafka",
		"API_EVENTS_KAFKA_BROKERS":      "k1:9092, k2:9092",
		"API_IDEMPOTENCY_HEADER":        "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":           "48h",
		"API_WALLET_MAX_TOP_UP":         "250.50",
	}

	secrets := map[string]string{
		"secret://auth/jwt":       "jwt-secret",
		"secret://paypal/secret":  "paypal-secret",
		"secret://stripe/api":     "stripe-key",
		"secret://stripe/webhook": "stripe-webhook",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.RequestTimeout != 10*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Server.MetricsEnabled {
		t.Errorf("expected metrics disabled")
	}
	if cfg.Storage.Backend != StorageBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Auth.TokenSecret != "jwt-secret" || cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("unexpected auth config %+v", cfg.Auth)
	}
	if cfg.Security.DevelopmentMode() {
		t.Errorf("expected prod environment to hide details")
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("unexpected issuers %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.PSP.Currency != "EUR" {
		t.Errorf("expected upper-cased currency, got %s", cfg.PSP.Currency)
	}
	if cfg.PSP.PayPalSecret != "paypal-secret" || cfg.PSP.StripeAPIKey != "stripe-key" || cfg.PSP.StripeWebhookSecret != "stripe-webhook" {
		t.Errorf("secrets not resolved %+v", cfg.PSP)
	}
	if cfg.PSP.PayPalBaseURL != "https://api-m.paypal.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.PSP.PayPalBaseURL)
	}
	if !cfg.PSP.PayPalEnabled() || !cfg.PSP.StripeEnabled() {
		t.Errorf("expected both providers enabled")
	}
	if !cfg.Redis.Enabled() || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected kafka brokers %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency config %+v", cfg.Idempotency)
	}
	if cfg.Wallet.MaxTopUp.String() != "250.5" {
		t.Errorf("unexpected max top up %s", cfg.Wallet.MaxTopUp)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nexport API_SERVER_PORT=7070\nAPI_STORAGE_BACKEND=memory\nAPI_AUTH_TOKEN_SECRET=\"dot-secret\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Auth.TokenSecret != "dot-secret" {
		t.Errorf("expected quoted value to be unwrapped, got %s", cfg.Auth.TokenSecret)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Firestore.ProjectID": false, "Auth.TokenSecret": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in %v", field, fields)
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := minimalEnv()
	env["API_STORAGE_BACKEND"] = "postgres"
	env["API_EVENTS_BACKEND"] = "pubsub"
	env["API_EVENTS_TOPIC"] = " "
	env["API_WALLET_MAX_TOP_UP"] = "lots"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	for _, expected := range []string{"Storage.Backend", "Wallet.MaxTopUp"} {
		if !containsField(fields, expected) {
			t.Errorf("expected %s in %v", expected, fields)
		}
	}
	count := 0
	for _, field := range fields {
		if field == "Wallet.MaxTopUp" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected Wallet.MaxTopUp once, got %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := minimalEnv()
	env["API_PSP_STRIPE_API_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS":  "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(minimalEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeWebhookSecret", "Auth.TokenSecret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "PSP.StripeWebhookSecret" {
		t.Fatalf("unexpected missing names %v", got)
	}
	if got := missing.RedactedNames(); len(got) != 1 || got[0] == "PSP.StripeWebhookSecret" {
		t.Fatalf("expected redacted name, got %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "PSP.PayPalSecret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	_, _ = Load(context.Background(),
		WithEnvMap(minimalEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.PayPalSecret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := minimalEnv()
	env["API_AUTH_TOKEN_SECRET"] = "sm://auth/jwt"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://auth/jwt" {
			return "legacy-secret", nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.TokenSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Auth.TokenSecret)
	}
}
