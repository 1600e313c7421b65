package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

const tracerShutdownTimeout = 5 * time.Second

// TracingConfig selects where spans go and how many are kept.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the OTLP gRPC collector address, e.g. tempo:4317.
	Endpoint string
	// SampleRate is the fraction of new traces recorded. Spans with a
	// sampled parent are always recorded.
	SampleRate float64
	// Environment defaults to $ENV, then "production".
	Environment string
}

func (c TracingConfig) environment() string {
	if c.Environment != "" {
		return c.Environment
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "production"
}

// newSampler maps a sample rate onto a parent-based sampler.
func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func newResource(c TracingConfig) *resource.Resource {
	version := c.ServiceVersion
	if version == "" {
		version = "dev"
	}
	return resource.NewWithAttributes("",
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(version),
		semconv.DeploymentEnvironment(c.environment()),
	)
}

// InitTracing installs the global tracer provider and W3C propagators for
// the fraud engine's spans. The returned func flushes pending spans.
func InitTracing(ctx context.Context, logger *zap.Logger, cfg TracingConfig) (func(), error) {
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter for %s: %w", cfg.Endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.environment()),
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_rate", cfg.SampleRate))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown", zap.Error(err))
		}
	}, nil
}
