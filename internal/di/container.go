package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/config"
	"github.com/storefront/api/internal/platform/observability"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Resolver     services.AccountResolver
	Cart         services.CartService
	Checkout     services.CheckoutService
	Orders       services.OrderService
	Payments     services.PaymentService
	Auth         services.AuthService
	AccountAdmin services.AccountAdminService
	Wishlist     services.WishlistService
	Catalog      services.CatalogService
	Categories   services.CategoryService
	Reviews      services.ReviewService
	System       services.SystemService
}

// Infrastructure carries the clients built by main that services depend on. Nil members disable
// the features that need them: without Payments there is no payment service and checkout only
// accepts wallet and cash-on-delivery.
type Infrastructure struct {
	Tokens   *auth.TokenIssuer
	Payments *payments.Manager
	Events   services.EventPublisher
	Cache    services.ProductCache
	Metrics  services.SettlementRecorder
	Logger   *zap.Logger
	Build    services.BuildInfo
	Clock    func() time.Time
	// OptionalChecks name readiness checks that only degrade the instance when failing.
	OptionalChecks []string
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply the in-memory registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	base := infra.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logFor := func(name string) func(ctx context.Context, event string, fields map[string]any) {
		return observability.ServiceLogger(base.Named(name))
	}

	resolver, err := services.NewAccountResolver(services.AccountResolverDeps{
		Accounts: reg.Accounts(),
		Tokens:   infra.Tokens,
		Clock:    clock,
		Logger:   logFor("accounts"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build account resolver: %w", err)
	}
	svc.Resolver = resolver

	authSvc, err := services.NewAuthService(services.AuthServiceDeps{
		Accounts:      reg.Accounts(),
		Credentials:   infra.Tokens,
		Verifications: infra.Tokens,
		Clock:         clock,
		Logger:        logFor("auth"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build auth service: %w", err)
	}
	svc.Auth = services.NewNotifyingAuthService(authSvc, infra.Events, clock, logFor("auth"))

	adminSvc, err := services.NewAccountAdminService(services.AccountAdminServiceDeps{
		Accounts: reg.Accounts(),
		Clock:    clock,
		Logger:   logFor("accounts"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build account admin service: %w", err)
	}
	svc.AccountAdmin = adminSvc

	catalogDeps := services.CatalogServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Clock:      clock,
		Logger:     logFor("catalog"),
	}
	if infra.Cache != nil {
		catalogDeps.Cache = infra.Cache
	}
	catalogSvc, err := services.NewCatalogService(catalogDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	categorySvc, err := services.NewCategoryService(services.CategoryServiceDeps{
		Categories: reg.Categories(),
		Logger:     logFor("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build category service: %w", err)
	}
	svc.Categories = categorySvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:  reg.Reviews(),
		Products: reg.Products(),
		Accounts: reg.Accounts(),
		Cache:    infra.Cache,
		Clock:    clock,
		Logger:   logFor("reviews"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Clock:    clock,
		Logger:   logFor("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	wishlistSvc, err := services.NewWishlistService(services.WishlistServiceDeps{
		Wishlists: reg.Wishlists(),
		Products:  reg.Products(),
		Logger:    logFor("wishlist"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build wishlist service: %w", err)
	}
	svc.Wishlist = wishlistSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Currency: cfg.PSP.Currency,
		Clock:    clock,
		Logger:   logFor("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	pricer, err := services.NewPricer(reg.Products())
	if err != nil {
		return Services{}, fmt.Errorf("build pricer: %w", err)
	}
	stock, err := services.NewStockAdjuster(reg.Products(), logFor("stock"))
	if err != nil {
		return Services{}, fmt.Errorf("build stock adjuster: %w", err)
	}

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Accounts:  reg.Accounts(),
		Carts:     reg.Carts(),
		Orders:    reg.Orders(),
		OrderSvc:  orderSvc,
		Pricer:    pricer,
		Stock:     stock,
		Payments:  infra.Payments,
		Events:    infra.Events,
		Metrics:   infra.Metrics,
		Currency:  cfg.PSP.Currency,
		ReturnURL: cfg.PSP.ReturnURL,
		CancelURL: cfg.PSP.CancelURL,
		Clock:     clock,
		Logger:    logFor("checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	if infra.Payments != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:    reg.Orders(),
			Accounts:  reg.Accounts(),
			Carts:     reg.Carts(),
			OrderSvc:  orderSvc,
			Stock:     stock,
			Payments:  infra.Payments,
			Events:    infra.Events,
			Metrics:   infra.Metrics,
			Currency:  cfg.PSP.Currency,
			MaxTopUp:  cfg.Wallet.MaxTopUp,
			ReturnURL: cfg.PSP.ReturnURL,
			CancelURL: cfg.PSP.CancelURL,
			Clock:     clock,
			Logger:    logFor("payments"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            infra.Build,
			Optional:         infra.OptionalChecks,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
