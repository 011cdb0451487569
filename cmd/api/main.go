package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/monocart/internal/auth"
	"github.com/joao-fontenele/monocart/internal/cart"
	"github.com/joao-fontenele/monocart/internal/catalog"
	"github.com/joao-fontenele/monocart/internal/config"
	"github.com/joao-fontenele/monocart/internal/email"
	"github.com/joao-fontenele/monocart/internal/messaging"
	"github.com/joao-fontenele/monocart/internal/orders"
	"github.com/joao-fontenele/monocart/internal/realtime"
	"github.com/joao-fontenele/monocart/internal/telemetry"
	"github.com/joao-fontenele/monocart/internal/users"
)

const (
	serviceName    = "monocart-api"
	serviceVersion = "0.1.0"
)

func main() {
	configPath := flag.String("config", "", "optional config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		return fmt.Errorf("init meter: %w", err)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	checkoutMetrics, err := telemetry.NewCheckoutMetrics()
	if err != nil {
		return fmt.Errorf("init checkout metrics: %w", err)
	}

	db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	hub := realtime.NewHub(logger)

	var cartCache cart.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, cart reads will hit postgres until it recovers", "error", err, "addr", cfg.RedisAddr)
		}
		cancel()
		cartCache = cart.NewRedisCache(rdb)
	}
	carts := cart.NewService(cart.NewRepository(db), cartCache, logger)

	checkoutOpts := []orders.Option{
		orders.WithCartInvalidator(carts),
		orders.WithMetrics(checkoutMetrics),
		orders.WithTxTimeout(cfg.Checkout.TxTimeout),
		orders.WithPublishTimeout(cfg.Checkout.PublishTimeout),
	}
	if len(cfg.KafkaBrokers) > 0 {
		inventoryProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicInventoryUpdated)
		defer func() { _ = inventoryProducer.Close() }()
		orderProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderPlaced)
		defer func() { _ = orderProducer.Close() }()

		checkoutOpts = append(checkoutOpts,
			orders.WithInventoryEvents(inventoryProducer),
			orders.WithOrderEvents(orderProducer),
		)
	}

	orderRepo := orders.NewOrderRepository(db)
	checkout := orders.NewService(orderRepo, hub, logger, checkoutOpts...)

	var mailer users.Mailer
	if cfg.EmailServiceURL != "" {
		mailer = email.NewClient(cfg.EmailServiceURL, &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
	}
	accounts := users.NewService(users.NewRepository(db), tokens, mailer, cfg.PublicBaseURL, logger)

	rt := &routes{
		auth:            auth.NewMiddleware(tokens, logger),
		users:           users.NewHandler(accounts, logger),
		catalog:         catalog.NewHandler(catalog.NewRepository(db), logger),
		cart:            cart.NewHandler(carts, logger),
		orders:          orders.NewHandler(checkout, orderRepo, logger),
		realtime:        realtime.NewHandler(hub, logger),
		metrics:         metricsHandler,
		db:              db,
		logger:          logger,
		requireVerified: cfg.Checkout.RequireVerified,
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(rt.handler(), serviceName),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api", "port", cfg.Port, "kafka", len(cfg.KafkaBrokers) > 0, "redis", cfg.RedisAddr != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		checkout.Wait()
		return err
	})

	return g.Wait()
}
