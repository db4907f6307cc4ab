package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solventline/api/internal/platform/auth"
	"github.com/solventline/api/internal/platform/config"
	"github.com/solventline/api/internal/repositories"
	"github.com/solventline/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Coupons  services.CouponService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Users    services.UserService
	System   services.SystemService
}

// Deps carries the infrastructure the container cannot derive from the
// repository registry alone.
type Deps struct {
	Registry repositories.Registry
	Gateway  services.PaymentGateway
	Events   services.OrderEventPublisher
	Firebase auth.UserGetter
	Build    services.BuildInfo
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring will provide real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	if productsRepo := reg.Products(); productsRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Products: productsRepo,
			Clock:    clock,
			Logger:   logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	if cartsRepo := reg.Carts(); cartsRepo != nil && svc.Catalog != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Repository:      cartsRepo,
			Catalog:         svc.Catalog,
			Clock:           clock,
			DefaultCurrency: "INR",
			Logger:          logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Cart = cartSvc
	}

	if couponsRepo := reg.Coupons(); couponsRepo != nil {
		couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
			Coupons: couponsRepo,
			Clock:   clock,
			Logger:  logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build coupon service: %w", err)
		}
		svc.Coupons = couponSvc
	}

	if svc.Catalog != nil && svc.Coupons != nil && deps.Gateway != nil {
		pricing, err := services.NewCartPricingEngine(services.CartPricingEngineDeps{
			Coupons:  svc.Coupons,
			Currency: "INR",
			Now:      clock,
			Logger:   logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build pricing engine: %w", err)
		}
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Registry: reg,
			Catalog:  svc.Catalog,
			Pricing:  pricing,
			Gateway:  deps.Gateway,
			Events:   deps.Events,
			Currency: "INR",
			Clock:    clock,
			Logger:   logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	if ordersRepo := reg.Orders(); ordersRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:     ordersRepo,
			UnitOfWork: reg,
			Stock:      svc.Catalog,
			Events:     deps.Events,
			Clock:      clock,
			Logger:     logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if usersRepo := reg.Users(); usersRepo != nil {
		userSvc, err := services.NewUserService(services.UserServiceDeps{
			Users:    usersRepo,
			Firebase: deps.Firebase,
			Clock:    clock,
			Logger:   logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build user service: %w", err)
		}
		svc.Users = userSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := deps.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Counters:         reg.Counters(),
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
