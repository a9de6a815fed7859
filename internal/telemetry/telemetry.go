// Package telemetry wires tracing, metrics, and logging the way the
// teacher repository's common/mopentelemetry and common/mzap packages do,
// generalized to serve as the Observability Port described in spec.md
// §4.2: spans per CDC envelope, counters/histograms for processing, and a
// context-carried structured logger shared by the command and saga paths.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config mirrors the fields the teacher's Telemetry struct takes from env
// vars (OTEL_RESOURCE_SERVICE_NAME, OTEL_LIBRARY_NAME, ...).
type Config struct {
	LibraryName     string
	ServiceName     string
	ServiceVersion  string
	DeploymentEnv   string
	CollectorEndpoint string
	Enabled         bool
}

// Provider bundles the tracer and meter used across the module.
type Provider struct {
	cfg            Config
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	shutdown       func(context.Context) error
}

// NewProvider builds a Provider. When cfg.Enabled is false it wires no-op
// global providers so callers never need to nil-check the tracer/meter.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		p := &Provider{cfg: cfg, tracer: otel.Tracer(cfg.LibraryName), meter: otel.Meter(cfg.LibraryName)}
		p.shutdown = func(context.Context) error { return nil }

		return p, nil
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.DeploymentEnv),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: merge resource: %w", err)
	}

	traceExp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: new trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: new metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	otel.SetMeterProvider(mp)

	p := &Provider{
		cfg:            cfg,
		TracerProvider: tp,
		MeterProvider:  mp,
		tracer:         tp.Tracer(cfg.LibraryName),
		meter:          mp.Meter(cfg.LibraryName),
	}
	p.shutdown = func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}

		return mp.Shutdown(ctx)
	}

	return p, nil
}

// Tracer returns the tracer used to start spans.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Meter returns the meter used to create counters/histograms.
func (p *Provider) Meter() metric.Meter { return p.meter }

// Shutdown flushes and closes the providers.
func (p *Provider) Shutdown(ctx context.Context) error { return p.shutdown(ctx) }

// RecordSpanError sets span status to Error and attaches the exception
// name/message, mirroring libOpentelemetry.HandleSpanError in the teacher.
func RecordSpanError(span trace.Span, description string, err error) {
	if err == nil {
		return
	}

	span.SetStatus(codes.Error, description)
	span.SetAttributes(
		attribute.String("exception.type", fmt.Sprintf("%T", err)),
		attribute.String("exception.message", err.Error()),
	)
}

type loggerKey struct{}

// Logger is the narrow structured-logging surface the rest of the module
// depends on, implemented by ZapLogger in production.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
	With(keysAndValues ...any) Logger
}

// ZapLogger adapts *zap.SugaredLogger to Logger, mirroring
// common/mzap.ZapWithTraceLogger's role in the teacher.
type ZapLogger struct {
	Sugar *zap.SugaredLogger
}

// NewZapLogger builds a production JSON logger.
func NewZapLogger() (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{Sugar: logger.Sugar()}, nil
}

func (l *ZapLogger) Debugw(msg string, kv ...any) { l.Sugar.Debugw(msg, kv...) }
func (l *ZapLogger) Infow(msg string, kv ...any)  { l.Sugar.Infow(msg, kv...) }
func (l *ZapLogger) Warnw(msg string, kv ...any)  { l.Sugar.Warnw(msg, kv...) }
func (l *ZapLogger) Errorw(msg string, kv ...any) { l.Sugar.Errorw(msg, kv...) }

func (l *ZapLogger) With(kv ...any) Logger {
	return &ZapLogger{Sugar: l.Sugar.With(kv...)}
}

// ContextWithLogger stores the logger on the context, mirroring
// mlog.ContextWithLogger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext retrieves a previously stored logger, falling back to
// a stderr-writing no-frills logger so call sites never get a nil.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}

	return fallbackLogger{}
}

type fallbackLogger struct{}

func (fallbackLogger) Debugw(msg string, kv ...any) { fmt.Fprintln(os.Stderr, "DEBUG", msg, kv) }
func (fallbackLogger) Infow(msg string, kv ...any)  { fmt.Fprintln(os.Stderr, "INFO", msg, kv) }
func (fallbackLogger) Warnw(msg string, kv ...any)  { fmt.Fprintln(os.Stderr, "WARN", msg, kv) }
func (fallbackLogger) Errorw(msg string, kv ...any) { fmt.Fprintln(os.Stderr, "ERROR", msg, kv) }
func (fallbackLogger) With(kv ...any) Logger        { return fallbackLogger{} }
