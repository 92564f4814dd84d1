package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/furnishly-backend/internal/cart"
	"github.com/angelmondragon/furnishly-backend/internal/cron"
	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/internal/promotions"
	"github.com/angelmondragon/furnishly-backend/pkg/config"
	"github.com/angelmondragon/furnishly-backend/pkg/db"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/metrics"
	"github.com/angelmondragon/furnishly-backend/pkg/migrate"
	"github.com/angelmondragon/furnishly-backend/pkg/redis"
	"github.com/angelmondragon/furnishly-backend/pkg/tracing"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

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

	if err := run(cfg, logg, *once); err != nil {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger, once bool) (err error) {
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

	loc, err := cfg.Pricing.Location()
	if err != nil {
		return err
	}

	expiry, err := cron.NewPromotionExpiryJob(cron.PromotionExpiryJobParams{
		Logger:     logg,
		Promotions: promotions.NewRepository(dbClient.DB()),
		Clock:      pricing.NewClock(loc),
	})
	if err != nil {
		return err
	}
	retention, err := cron.NewCartRetentionJob(cron.CartRetentionJobParams{
		Logger:    logg,
		Carts:     cart.NewRepository(dbClient.DB()),
		Retention: cfg.Cron.CartRetentionDays,
	})
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind, cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiry, retention),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if once {
		logg.Info(ctx, "running cron jobs once")
		return service.RunOnce(ctx)
	}

	stopMetrics := serveMetrics(ctx, logg, cfg.Cron.MetricsAddr)
	defer stopMetrics()

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

// serveMetrics exposes the default registry so the cron counters can be
// scraped. The returned func shuts the listener down.
func serveMetrics(ctx context.Context, logg *logger.Logger, addr string) func() {
	if addr == "" {
		return func() {}
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "cron metrics listener failed", err)
		}
	}()
	logg.Info(logg.WithField(ctx, "addr", addr), "cron metrics listening")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
