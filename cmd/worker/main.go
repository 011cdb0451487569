package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/monocart/internal/config"
	"github.com/joao-fontenele/monocart/internal/email"
	"github.com/joao-fontenele/monocart/internal/messaging"
	"github.com/joao-fontenele/monocart/internal/telemetry"
	"github.com/joao-fontenele/monocart/internal/worker"
)

const (
	serviceName   = "monocart-worker"
	consumerGroup = "receipt-worker"
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

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderPlaced, consumerGroup)
	defer func() { _ = consumer.Close() }()

	mailer := email.NewClient(cfg.EmailServiceURL, &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	receipts := worker.NewReceiptHandler(mailer, logger)

	logger.Info("starting receipt worker", "brokers", cfg.KafkaBrokers, "topic", messaging.TopicOrderPlaced)

	if err := consumer.Consume(ctx, receipts.Handle); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
