// Command materializer runs the CDC intake pipeline (spec.md §1): one
// partition-consumer goroutine per Kafka partition, materializing
// Debezium-style envelopes into MongoDB and dead-lettering permanent
// failures to RabbitMQ. Grounded on the teacher's
// components/consumer/cmd/app/main.go (InitLocalEnvConfig then a single
// bootstrap.Run() call).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"

	"github.com/cebartling/orderflow/internal/cdc"
	"github.com/cebartling/orderflow/internal/cdcintake"
	"github.com/cebartling/orderflow/internal/config"
	"github.com/cebartling/orderflow/internal/eventbus"
	"github.com/cebartling/orderflow/internal/resiliency"
	"github.com/cebartling/orderflow/internal/store/mongo"
	"github.com/cebartling/orderflow/internal/telemetry"
)

func main() {
	config.LoadEnvFile(".env")

	cfg := config.DefaultMaterializerConfig()
	if err := config.FromEnv(cfg); err != nil {
		panic(err)
	}

	logger, err := telemetry.NewZapLogger()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = telemetry.ContextWithLogger(ctx, logger)

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		LibraryName:       cfg.OtelLibraryName,
		ServiceName:       cfg.OtelServiceName,
		ServiceVersion:    cfg.OtelServiceVersion,
		DeploymentEnv:     cfg.OtelDeploymentEnv,
		CollectorEndpoint: cfg.OtelCollectorEndpoint,
		Enabled:           cfg.EnableTelemetry,
	})
	if err != nil {
		logger.Errorw("failed to start telemetry provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	metrics, err := telemetry.NewCDCMetrics(provider.Meter())
	if err != nil {
		logger.Errorw("failed to register cdc metrics", "error", err)
		os.Exit(1)
	}

	mongoConn := &mongo.Connection{URI: cfg.MongoURI, Database: cfg.MongoDBName}
	if err := mongoConn.Connect(ctx); err != nil {
		logger.Errorw("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer func() { _ = mongoConn.Close(context.Background()) }()

	store := mongo.NewDocumentRepository(mongoConn)

	deadLetterPublisher, err := eventbus.NewRabbitMQPublisher(cfg.DeadLetterURI)
	if err != nil {
		logger.Errorw("failed to connect to dead-letter rabbitmq", "error", err)
		os.Exit(1)
	}
	defer func() { _ = deadLetterPublisher.Close() }()

	deadLetter := &eventbus.DeadLetterSink{
		Publisher:  deadLetterPublisher,
		Exchange:   cfg.DeadLetterExchange,
		RoutingKey: cfg.DeadLetterRouting,
	}

	storeRetrier := resiliency.NewRetrier(resiliency.RetrySettings{
		MaxAttempts:  cfg.StoreRetryMaxAttempts,
		InitialDelay: cfg.StoreRetryInitDelay,
		Multiplier:   2.0,
		FullJitter:   true,
	})

	materializer := cdc.NewMaterializer(store, deadLetter, provider.Tracer(), metrics, storeRetrier)

	group := cdcintake.NewGroup(cdcintake.GroupConfig{
		Brokers:    strings.Split(cfg.KafkaBrokers, ","),
		Topic:      cfg.KafkaTopic,
		GroupID:    cfg.KafkaGroupID,
		Partitions: cfg.KafkaPartitions,
	}, materializer)

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	go func() {
		if err := app.Listen(":" + portOnly(cfg.HTTPPort)); err != nil && err != http.ErrServerClosed {
			logger.Errorw("health server stopped", "error", err)
		}
	}()

	logger.Infow("materializer starting", "topic", cfg.KafkaTopic, "partitions", cfg.KafkaPartitions)

	group.Run(ctx)

	logger.Infow("materializer shutting down")
	_ = app.ShutdownWithTimeout(0)
}

func portOnly(p string) string {
	if strings.HasPrefix(p, ":") {
		return p[1:]
	}

	return p
}
