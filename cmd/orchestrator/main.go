// Command orchestrator runs the CQRS Command Core and Saga Orchestrator
// (spec.md §1): a fiber HTTP surface over command.Handler, backed by
// Postgres (aggregates, idempotency, saga state, outbox) and Redis (the
// idempotency fast-path cache), with an outbox relay goroutine draining
// outbound events to RabbitMQ. Grounded on the teacher's
// components/consumer/internal/bootstrap/config.go wiring style
// generalized from a single consumer to an HTTP app plus background
// relay.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cebartling/orderflow/internal/adapters/fulfillment"
	"github.com/cebartling/orderflow/internal/clock"
	"github.com/cebartling/orderflow/internal/command"
	"github.com/cebartling/orderflow/internal/config"
	"github.com/cebartling/orderflow/internal/eventbus"
	"github.com/cebartling/orderflow/internal/httpapi"
	"github.com/cebartling/orderflow/internal/idgen"
	"github.com/cebartling/orderflow/internal/outboxrelay"
	"github.com/cebartling/orderflow/internal/resiliency"
	"github.com/cebartling/orderflow/internal/saga"
	"github.com/cebartling/orderflow/internal/store/postgres"
	storeredis "github.com/cebartling/orderflow/internal/store/redis"
	"github.com/cebartling/orderflow/internal/telemetry"
)

func main() {
	config.LoadEnvFile(".env")

	cfg := config.DefaultOrchestratorConfig()
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

	tracer := provider.Tracer()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.PrimaryDBUser, cfg.PrimaryDBPassword, cfg.PrimaryDBHost, cfg.PrimaryDBPort, cfg.PrimaryDBName)

	pg := &postgres.Connection{DSN: dsn, MaxOpenConns: cfg.MaxOpenConns, MaxIdleConns: cfg.MaxIdleConns}
	if err := pg.Connect(ctx); err != nil {
		logger.Errorw("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer func() { _ = pg.Close() }()

	redisConn := &storeredis.Connection{URI: fmt.Sprintf("redis://%s/%d", cfg.RedisAddr, cfg.RedisDB)}
	if err := redisConn.Connect(ctx); err != nil {
		logger.Errorw("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() { _ = redisConn.Close() }()

	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitURI)
	if err != nil {
		logger.Errorw("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer func() { _ = publisher.Close() }()

	products := &postgres.ProductRepository{Conn: pg, Tracer: tracer}
	idempotencyStore := &postgres.IdempotencyRepository{Conn: pg, Tracer: tracer}
	idempotencyCache := &storeredis.IdempotencyCache{Conn: redisConn, Tracer: tracer}
	outbox := &postgres.OutboxRepository{Conn: pg, Tracer: tracer}

	limiter := resiliency.NewRateLimiter(cfg.RateLimitTokens)
	retrier := resiliency.NewRetrier(resiliency.RetrySettings{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		Multiplier:   cfg.RetryMultiplier,
		FullJitter:   true,
	})
	breaker := resiliency.NewCircuitBreaker("command-handler", resiliency.BreakerSettings{
		WindowSize:        cfg.BreakerWindowSize,
		MinCalls:          cfg.BreakerMinCalls,
		HalfOpenProbes:    uint32(cfg.BreakerHalfOpenProbes),
		OpenWait:          cfg.BreakerOpenWait,
		SlowCallThreshold: cfg.BreakerSlowCallThreshold,
	})

	handler := &command.Handler{
		DB:               pg.DB(),
		Products:         products,
		Idempotency:      idempotencyStore,
		IdempotencyCache: idempotencyCache,
		Outbox:           outbox,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		PriceThreshold:   cfg.PriceChangeThreshold,
		Clock:            clock.System{},
		IDs:              idgen.UUIDGenerator{},
		Tracer:           tracer,
		Limiter:          limiter,
		Retrier:          retrier,
		Breaker:          breaker,
	}

	relay := &outboxrelay.Relay{
		Store:      outbox,
		Publisher:  publisher,
		Exchange:   cfg.OutboxExchange,
		RoutingKey: "product.events",
		MaxRetries: cfg.RetryMaxAttempts,
		PollEvery:  time.Second,
		Tracer:     tracer,
	}

	go relay.Run(ctx)

	orderRepo := &postgres.OrderRepository{Conn: pg, Tracer: tracer}
	executions := &postgres.ExecutionRepository{Conn: pg, Tracer: tracer}
	stepResults := &postgres.StepResultRepository{Conn: pg, Tracer: tracer}
	history := &postgres.HistoryRepository{Conn: pg, Tracer: tracer}

	sagaExecutor := &saga.Executor{
		Executions:  executions,
		StepResults: stepResults,
		History:     history,
		Clock:       clock.System{},
		IDs:         idgen.UUIDGenerator{},
		Tracer:      tracer,
	}

	compensator := &saga.Orchestrator{
		Executions: executions,
		Orders:     orderRepo,
		History:    history,
		Clock:      clock.System{},
		IDs:        idgen.UUIDGenerator{},
		Tracer:     tracer,
	}

	sagaRunner := &saga.Runner{
		Orders:      orderRepo,
		Executions:  executions,
		Executor:    sagaExecutor,
		Compensator: compensator,
		Clock:       clock.System{},
		IDs:         idgen.UUIDGenerator{},
		Tracer:      tracer,
	}

	sagaRetrier := &saga.RetryOrchestrator{
		Executions:  executions,
		StepResults: stepResults,
		Executor:    sagaExecutor,
		Tracer:      tracer,
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	orderHandler := &httpapi.OrderHandler{
		OrderRepo: orderRepo,
		Runner:    sagaRunner,
		Retrier:   sagaRetrier,
		Inventory: &fulfillment.InventoryClient{BaseURL: cfg.InventoryServiceURL, HTTP: httpClient},
		Payment:   &fulfillment.PaymentClient{BaseURL: cfg.PaymentServiceURL, HTTP: httpClient},
		Shipping:  &fulfillment.ShippingClient{BaseURL: cfg.ShippingServiceURL, HTTP: httpClient},
		Tracer:    tracer,
	}

	productHandler := &httpapi.ProductHandler{Commands: handler, Products: products, Tracer: tracer}

	app := httpapi.NewRouter(productHandler, orderHandler, logger)

	go func() {
		if err := app.Listen(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			logger.Errorw("http server stopped", "error", err)
		}
	}()

	logger.Infow("orchestrator started", "httpPort", cfg.HTTPPort)

	<-ctx.Done()

	logger.Infow("orchestrator shutting down")
	_ = app.ShutdownWithTimeout(5 * time.Second)
}
