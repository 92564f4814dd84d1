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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/furnishly-backend/api/routes"
	"github.com/angelmondragon/furnishly-backend/internal/auth"
	"github.com/angelmondragon/furnishly-backend/internal/cart"
	"github.com/angelmondragon/furnishly-backend/internal/orders"
	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/internal/products"
	"github.com/angelmondragon/furnishly-backend/internal/promotions"
	"github.com/angelmondragon/furnishly-backend/internal/reviews"
	"github.com/angelmondragon/furnishly-backend/internal/users"
	"github.com/angelmondragon/furnishly-backend/pkg/auth/session"
	"github.com/angelmondragon/furnishly-backend/pkg/config"
	"github.com/angelmondragon/furnishly-backend/pkg/db"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/metrics"
	"github.com/angelmondragon/furnishly-backend/pkg/migrate"
	"github.com/angelmondragon/furnishly-backend/pkg/redis"
	"github.com/angelmondragon/furnishly-backend/pkg/tracing"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	shutdownTracing, err := tracing.Setup(bootCtx, cfg.Tracing, os.Stderr)
	if err != nil {
		return err
	}
	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	redisClient, err := redis.New(bootCtx, cfg.Redis, logg, redis.NewMetricsHook(prometheus.DefaultRegisterer))
	if err != nil {
		return multierr.Append(err, dbClient.Close())
	}
	defer func() {
		err = multierr.Combine(err, shutdownTracing(bootCtx), redisClient.Close(), dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        server.Addr,
		"serviceKind": cfg.Service.Kind,
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	loc, err := cfg.Pricing.Location()
	if err != nil {
		return routes.Dependencies{}, err
	}
	clock := pricing.NewClock(loc)
	evaluator := pricing.NewEvaluator(cfg.Pricing.GeneralCode)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return routes.Dependencies{}, err
	}

	userRepo := users.NewRepository(dbClient.DB())
	productRepo := products.NewRepository(dbClient.DB())
	promotionRepo := promotions.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	userService, err := users.NewService(userRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}
	reviewService, err := reviews.NewService(reviews.NewRepository(dbClient.DB()))
	if err != nil {
		return routes.Dependencies{}, err
	}
	productService, err := products.NewService(products.ServiceParams{
		DB:         dbClient,
		Repo:       productRepo,
		Promotions: promotionRepo,
		Ratings:    reviewService,
		Evaluator:  evaluator,
		Clock:      clock,
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	promotionService, err := promotions.NewService(promotions.ServiceParams{
		Repo:      promotionRepo,
		Evaluator: evaluator,
		Clock:     clock,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	cartService, err := cart.NewService(cart.ServiceParams{
		Repo:       cart.NewRepository(dbClient.DB()),
		Products:   productRepo,
		Promotions: promotionRepo,
		Evaluator:  evaluator,
		Clock:      clock,
		Metrics:    metrics.NewPricingMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Evaluator: evaluator,
		Clock:     clock,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:             dbClient,
		Redis:          redisClient,
		Sessions:       sessionManager,
		RateLimits:     redisClient,
		Idempotency:    redisClient,
		HTTPMetrics:    metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		MetricsHandler: promhttp.Handler(),
		Auth:           authService,
		Users:          userService,
		Products:       productService,
		Promotions:     promotionService,
		Cart:           cartService,
		Orders:         orderService,
		Reviews:        reviewService,
	}, nil
}
