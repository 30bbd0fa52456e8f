package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-orders/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-orders/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-orders/api/controllers/orders"
	"github.com/angelmondragon/storefront-orders/api/middleware"
	"github.com/angelmondragon/storefront-orders/internal/auth"
	"github.com/angelmondragon/storefront-orders/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-orders/internal/checkout"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	product "github.com/angelmondragon/storefront-orders/internal/products"
	"github.com/angelmondragon/storefront-orders/pkg/auth/session"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-orders/pkg/redis"
)

// RedisStore is the redis surface the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type restocker interface {
	Restock(ctx context.Context, productID uuid.UUID, qty int) (product.Snapshot, error)
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Redis    RedisStore
	Sessions session.AccessSessionChecker
	Users    userLoader
	Gatherer prometheus.Gatherer

	Auth     auth.Service
	Cart     cart.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Products restocker
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	var limiter interface {
		FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	}
	var idem pkgredis.IdempotencyStore
	if d.Redis != nil {
		limiter, idem = d.Redis, d.Redis
	}
	idempotent := middleware.Idempotency(idem, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Pingers))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, limiter, logg)).Post("/login", controllers.AuthLogin(d.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, limiter, logg), idempotent).Post("/register", controllers.AuthRegister(d.Auth, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, limiter, logg)).Post("/federated/google", controllers.AuthFederatedGoogle(d.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(d.Auth, logg))
			r.With(middleware.Auth(cfg.JWT, d.Sessions, logg)).Post("/logout", controllers.AuthLogout(d.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
			r.Use(middleware.Identity(d.Users, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(d.Cart, logg))
				r.Delete("/", cartcontrollers.CartClear(d.Cart, logg))
				r.Post("/lines", cartcontrollers.CartAddLine(d.Cart, logg))
				r.Patch("/lines/{lineId}", cartcontrollers.CartUpdateLine(d.Cart, logg))
				r.Delete("/lines/{lineId}", cartcontrollers.CartRemoveLine(d.Cart, logg))
			})

			r.With(idempotent).Post("/checkout", controllers.Checkout(d.Checkout, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(d.Orders, logg))
				r.Get("/count", ordercontrollers.Count(d.Orders, logg))
				r.Get("/number/{orderNumber}", ordercontrollers.ByNumber(d.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(d.Orders, logg))
				r.With(idempotent).Post("/{orderId}/cancel", ordercontrollers.Cancel(d.Orders, logg))
			})
			r.Get("/purchases/{productId}", ordercontrollers.HasPurchased(d.Orders, logg))

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
				r.Get("/orders", ordercontrollers.AdminList(d.Orders, logg))
				r.With(idempotent).Patch("/orders/{orderId}/status", ordercontrollers.AdminUpdateStatus(d.Orders, logg))
				r.With(idempotent).Post("/products/{productId}/restock", controllers.AdminRestock(d.Products, logg))
			})
		})
	})

	return r
}
