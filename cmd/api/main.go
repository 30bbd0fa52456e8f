package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-orders/api"
	"github.com/angelmondragon/storefront-orders/api/controllers"
	"github.com/angelmondragon/storefront-orders/api/routes"
	"github.com/angelmondragon/storefront-orders/internal/auth"
	"github.com/angelmondragon/storefront-orders/internal/cart"
	"github.com/angelmondragon/storefront-orders/internal/checkout"
	"github.com/angelmondragon/storefront-orders/internal/identity"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	product "github.com/angelmondragon/storefront-orders/internal/products"
	"github.com/angelmondragon/storefront-orders/internal/stock"
	"github.com/angelmondragon/storefront-orders/internal/users"
	"github.com/angelmondragon/storefront-orders/pkg/auth/session"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/instance"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
	"github.com/angelmondragon/storefront-orders/pkg/migrate"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/redis"
	"github.com/angelmondragon/storefront-orders/pkg/security"
	"github.com/angelmondragon/storefront-orders/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	tp, err := tracing.Setup(ctx, cfg.Tracing, "storefront-api", cfg.Service.Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	deps, err := buildServices(cfg, logg, dbClient, sessionManager, orderMetrics)
	if err != nil {
		return err
	}
	deps.Config = cfg
	deps.Logger = logg
	deps.Pingers = map[string]controllers.Pinger{"db": dbClient, "redis": redisClient}
	deps.Redis = redisClient
	deps.Sessions = sessionManager
	deps.Gatherer = registry

	server := api.NewServer(cfg, routes.NewRouter(deps))

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr,
		"instance": instance.ID("api-0"),
	})
	logg.Info(logCtx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(logCtx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildServices(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	sessionManager *session.Manager,
	orderMetrics *metrics.OrderMetrics,
) (routes.Deps, error) {
	conn := dbClient.DB()
	userRepo := users.NewRepository(conn)

	identitySvc, err := identity.NewService(userRepo, logg)
	if err != nil {
		return routes.Deps{}, err
	}

	var verifier auth.TokenVerifier
	if cfg.Google.ClientID != "" {
		google, err := auth.NewGoogleVerifier(cfg.Google.ClientID)
		if err != nil {
			return routes.Deps{}, err
		}
		verifier = google
	}

	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		Identity:       identitySvc,
		SessionManager: sessionManager,
		Hasher:         security.NewHasher(cfg.Password),
		Verifier:       verifier,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	ledger := stock.NewLedger(dbClient, orderMetrics)
	productSvc, err := product.NewService(product.NewRepository(conn), ledger)
	if err != nil {
		return routes.Deps{}, err
	}

	cartRepo := cart.NewRepository(conn)
	cartSvc, err := cart.NewService(cartRepo, productSvc)
	if err != nil {
		return routes.Deps{}, err
	}

	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	ordersRepo := orders.NewRepository(conn)

	ordersSvc, err := orders.NewService(ordersRepo, dbClient, ledger, emitter,
		orders.WithMetrics(orderMetrics),
		orders.WithLogger(logg),
	)
	if err != nil {
		return routes.Deps{}, err
	}

	checkoutSvc, err := checkout.NewService(cfg.Checkout, dbClient, cartRepo, ordersRepo, ledger, emitter,
		checkout.WithMetrics(orderMetrics),
		checkout.WithLogger(logg),
	)
	if err != nil {
		return routes.Deps{}, err
	}

	return routes.Deps{
		Users:    userRepo,
		Auth:     authSvc,
		Cart:     cartSvc,
		Checkout: checkoutSvc,
		Orders:   ordersSvc,
		Products: productSvc,
	}, nil
}
