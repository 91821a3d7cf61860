// Package telemetry wires OpenTelemetry tracing and log export for the
// typestate binaries.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const kubernetesCollector = "http://opentelemetry-collector.opentelemetry.svc.cluster.local:4318"

var (
	mu             sync.Mutex //nolint:gochecknoglobals
	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
)

// Config holds the OpenTelemetry configuration.
type Config struct {
	ServiceName    string        `env:"OTEL_SERVICE_NAME"    envDefault:"typestate"`
	ServiceVersion string        `env:"OTEL_SERVICE_VERSION" envDefault:"1.0.0"`
	Environment    string        `env:"OTEL_ENVIRONMENT"     envDefault:"local"`
	Endpoint       string        `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	LogsEndpoint   string        `env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
	Enabled        bool          `env:"OTEL_ENABLED"         envDefault:"false"`
	LogsEnabled    bool          `env:"OTEL_LOGS_ENABLED"    envDefault:"false"`
	Timeout        time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT" envDefault:"5s"`
}

// LoadConfigFromEnv loads the OpenTelemetry configuration from environment
// variables. Inside Kubernetes the endpoint defaults to the cluster collector.
func LoadConfigFromEnv() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if cfg.Endpoint == "" && os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		cfg.Endpoint = kubernetesCollector
	}

	if cfg.LogsEndpoint == "" {
		cfg.LogsEndpoint = cfg.Endpoint
	}

	return &cfg, nil
}

// Initialize sets up OpenTelemetry tracing, and log export when enabled,
// with the given configuration.
func Initialize(ctx context.Context, config *Config) error {
	if !config.Enabled {
		slog.Info("OpenTelemetry is disabled")

		return nil
	}

	if config.Endpoint == "" {
		slog.Warn("OpenTelemetry endpoint not configured, telemetry will be disabled")

		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(config.Endpoint),
		otlptracehttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	var lp *sdklog.LoggerProvider

	if config.LogsEnabled {
		logExporter, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpointURL(config.LogsEndpoint),
			otlploghttp.WithTimeout(config.Timeout),
		)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to create OTLP log exporter: %w", err), tp.Shutdown(ctx))
		}

		lp = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		)

		global.SetLoggerProvider(lp)
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	mu.Lock()
	tracerProvider = tp
	loggerProvider = lp
	mu.Unlock()

	slog.Info("OpenTelemetry initialized",
		"service", config.ServiceName,
		"version", config.ServiceVersion,
		"environment", config.Environment,
		"endpoint", config.Endpoint,
		"logs", config.LogsEnabled,
	)

	return nil
}

// LogHandler returns a slog handler exporting records through the
// configured log provider, or nil when log export is off.
func LogHandler(name string) slog.Handler {
	mu.Lock()
	defer mu.Unlock()

	if loggerProvider == nil {
		return nil
	}

	return otelslog.NewHandler(name, otelslog.WithLoggerProvider(loggerProvider))
}

// Shutdown flushes and shuts down the providers set up by Initialize.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp, lp := tracerProvider, loggerProvider
	tracerProvider, loggerProvider = nil, nil
	mu.Unlock()

	var errs []error

	if tp != nil {
		slog.Info("Shutting down OpenTelemetry tracer provider")

		errs = append(errs, tp.Shutdown(ctx))
	}

	if lp != nil {
		errs = append(errs, lp.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
