package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/storefront/api/internal/di"
	"github.com/storefront/api/internal/handlers"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/cache"
	"github.com/storefront/api/internal/platform/config"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/platform/idempotency"
	"github.com/storefront/api/internal/platform/jobs"
	"github.com/storefront/api/internal/platform/observability"
	"github.com/storefront/api/internal/platform/requestctx"
	"github.com/storefront/api/internal/platform/secrets"
	"github.com/storefront/api/internal/repositories"
	firestoreRepo "github.com/storefront/api/internal/repositories/firestore"
	"github.com/storefront/api/internal/repositories/memory"
	"github.com/storefront/api/internal/services"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type eventPublisher interface {
	services.EventPublisher
	Close() error
}

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	var (
		registry          repositories.Registry
		firestoreProvider *pfirestore.Provider
	)
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		logger.Warn("storage: using in-memory repositories; data is lost on restart")
		registry = memory.NewRegistry(time.Now)
	default:
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		if _, err := firestoreProvider.Client(ctx); err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		reg, err := firestoreRepo.NewRegistry(firestoreProvider, time.Now, dependencyChecks(redisClient, fetcher)...)
		if err != nil {
			logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
		}
		registry = reg
	}

	var idempotencyStore idempotency.Store
	switch {
	case redisClient != nil:
		idempotencyStore = idempotency.NewRedisStore(redisClient)
	case firestoreProvider != nil:
		idempotencyStore = idempotency.NewFirestoreStore(firestoreProvider)
	default:
		idempotencyStore = idempotency.NewMemoryStore()
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupCtx.Done():
					return
				case <-cleanupTicker.C:
					removed, err := idempotencyStore.CleanupExpired(cleanupCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					if err != nil {
						cleanupLogger.Warn("idempotency cleanup failed", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Debug("idempotency cleanup", zap.Int("removed", removed))
					}
				}
			}
		}()
	}

	events, err := buildEventPublisher(ctx, logger.Named("events"), cfg)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer func() {
		if err := events.Close(); err != nil {
			logger.Warn("event publisher close error", zap.Error(err))
		}
	}()

	var productCache services.ProductCache
	if redisClient != nil {
		pc, err := cache.NewProductCache(redisClient, cfg.Redis.ProductCacheTTL)
		if err != nil {
			logger.Fatal("failed to initialise product cache", zap.Error(err))
		}
		productCache = pc
	}

	paymentManager, err := buildPaymentManager(logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}
	if paymentManager == nil {
		logger.Warn("payments: no provider configured; only wallet and cash on delivery are available")
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.Issuer,
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithVerificationTTL(cfg.Auth.VerificationTTL),
	)
	if err != nil {
		logger.Fatal("failed to initialise token issuer", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(tokens)

	var metrics *observability.Metrics
	infra := di.Infrastructure{
		Tokens:   tokens,
		Payments: paymentManager,
		Events:   events,
		Cache:    productCache,
		Logger:   logger,
		Build:    buildInfo,
		Clock:    time.Now,
		// Secrets are resolved once at startup.
		OptionalChecks: []string{"secretManager"},
	}
	if cfg.Server.MetricsEnabled {
		metrics = observability.NewMetrics()
		infra.Metrics = metrics
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()
	svc := container.Services

	authHandlers := handlers.NewAuthHandlers(authenticator, svc.Auth, handlers.WithAuthRateLimit(authRateLimit, authRateWindow, time.Now))
	productHandlers := handlers.NewProductHandlers(svc.Catalog)
	categoryHandlers := handlers.NewCategoryHandlers(svc.Categories)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews)
	cartHandlers := handlers.NewCartHandlers(svc.Resolver, svc.Cart)
	checkoutHandlers := handlers.NewCheckoutHandlers(svc.Resolver, svc.Checkout, idempotencyMiddleware)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments,
		handlers.WithPaymentIdempotency(idempotencyMiddleware),
		handlers.WithReconcileAge(cfg.Wallet.ReconcileAge),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	wishlistHandlers := handlers.NewWishlistHandlers(authenticator, svc.Wishlist)
	adminHandlers := handlers.NewAdminHandlers(authenticator, handlers.AdminServices{
		Orders:     svc.Orders,
		Accounts:   svc.AccountAdmin,
		Catalog:    svc.Catalog,
		Categories: svc.Categories,
		Reviews:    svc.Reviews,
	})
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.ErrorDetailMiddleware(cfg.Security.DevelopmentMode()),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	var opts []handlers.Option
	if metrics != nil {
		middlewares = append(middlewares, metrics.Middleware)
		opts = append(opts, handlers.WithMetricsHandler(metrics.Handler()))
	}
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithAuthRoutes(authHandlers.Routes))
	opts = append(opts, handlers.WithProductRoutes(productHandlers.Routes))
	opts = append(opts, handlers.WithCategoryRoutes(categoryHandlers.Routes))
	opts = append(opts, handlers.WithReviewRoutes(reviewHandlers.Routes))
	opts = append(opts, handlers.WithCartRoutes(cartHandlers.Routes))
	opts = append(opts, handlers.WithCheckoutRoutes(checkoutHandlers.Routes))
	opts = append(opts, handlers.WithPaymentRoutes(paymentHandlers.PaymentRoutes))
	opts = append(opts, handlers.WithWalletRoutes(paymentHandlers.WalletRoutes))
	opts = append(opts, handlers.WithWebhookRoutes(paymentHandlers.WebhookRoutes))
	opts = append(opts, handlers.WithInternalRoutes(paymentHandlers.InternalRoutes))
	opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	opts = append(opts, handlers.WithWishlistRoutes(wishlistHandlers.Routes))
	opts = append(opts, handlers.WithAdminRoutes(adminHandlers.Routes))
	if oidcMiddleware := buildOIDCMiddleware(logger, cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening",
			zap.String("storage", cfg.Storage.Backend),
			zap.String("events", cfg.Events.Backend),
			zap.String("version", buildInfo.Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(cfg.Server.Version)
	if version == "" {
		version = strings.TrimSpace(env["API_BUILD_VERSION"])
	}
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

// dependencyChecks lists readiness checks beyond the storage backend itself.
func dependencyChecks(redisClient *redis.Client, fetcher *secrets.Fetcher) []repositories.DependencyCheck {
	var checks []repositories.DependencyCheck
	if redisClient != nil {
		client := redisClient
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return checks
}

func buildEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (eventPublisher, error) {
	switch cfg.Events.Backend {
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		publisher, err := jobs.NewPubSubEventPublisher(client.Topic(cfg.Events.Topic), jobs.WithMessageOrdering())
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &pubsubPublisher{PubSubEventPublisher: publisher, client: client}, nil
	case config.EventsBackendKafka:
		return jobs.NewKafkaEventPublisher(jobs.KafkaConfig{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
		}, logger)
	default:
		return jobs.NewLogEventPublisher(logger), nil
	}
}

// pubsubPublisher closes the owning client after flushing the topic.
type pubsubPublisher struct {
	*jobs.PubSubEventPublisher
	client *pubsub.Client
}

func (p *pubsubPublisher) Close() error {
	return errors.Join(p.PubSubEventPublisher.Close(), p.client.Close())
}

func buildPaymentManager(logger *zap.Logger, cfg config.Config) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider)
	if cfg.PSP.PayPalEnabled() {
		provider, err := payments.NewPayPalProvider(payments.PayPalProviderConfig{
			ClientID:     cfg.PSP.PayPalClientID,
			ClientSecret: cfg.PSP.PayPalSecret,
			BaseURL:      cfg.PSP.PayPalBaseURL,
			WebhookID:    cfg.PSP.PayPalWebhookID,
			Logger:       observability.ServiceLogger(logger.Named("paypal")),
		})
		if err != nil {
			return nil, err
		}
		if cfg.PSP.PayPalWebhookID == "" {
			logger.Warn("paypal: webhook id not configured; webhook signatures are not verified")
		}
		providers[payments.ProviderPayPal] = provider
	}
	if cfg.PSP.StripeEnabled() {
		provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:        cfg.PSP.StripeAPIKey,
			WebhookSecret: cfg.PSP.StripeWebhookSecret,
			Logger:        observability.ServiceLogger(logger.Named("stripe")),
		})
		if err != nil {
			return nil, err
		}
		providers[payments.ProviderStripe] = provider
	}
	if len(providers) == 0 {
		return nil, nil
	}
	return payments.NewManager(providers)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger.Named("oidc"))
	jwks := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(jwks, adapter)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(auth.OIDCPolicy{
		Audience:        audience,
		Issuers:         cfg.Security.OIDC.Issuers,
		ServiceAccounts: cfg.Security.OIDC.ServiceAccounts,
	})
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := secretProjectMapFromEnv(env); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPinsFromEnv(env); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_GOOGLE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets Load must resolve. Provider secrets are only required once
// the matching provider is switched on.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Auth.TokenSecret"}
	if strings.TrimSpace(env["API_PSP_PAYPAL_CLIENT_ID"]) != "" {
		required = append(required, "PSP.PayPalSecret")
	}
	if strings.TrimSpace(env["API_PSP_STRIPE_API_KEY"]) != "" {
		required = append(required, "PSP.StripeAPIKey", "PSP.StripeWebhookSecret")
	}
	if strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	projects := make(map[string]string)
	for label, project := range parseKeyValueList(env["API_SECRET_PROJECT_IDS"]) {
		projects[strings.ToLower(label)] = project
	}
	return projects
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(env["API_SECRET_VERSION_PINS"]) {
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		pins[prefix+ref] = version
	}
	return pins
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
