// Package telemetry wires OpenTelemetry tracing and metrics for the engine.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"gitlab.com/yelinaung/appdb/internal/config"
)

// ShutdownFunc flushes and stops the providers registered by Setup.
type ShutdownFunc func(context.Context) error

// Setup registers global trace and meter providers.
//
// Telemetry is opt-in: when cfg.Enabled is false Setup returns a no-op
// shutdown function and leaves the global providers untouched.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("unable to build resource: %w", err)
	}

	traceExp, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return noop, err
	}

	metricExp, err := newMetricExporter(ctx, cfg)
	if err != nil {
		_ = traceExp.Shutdown(ctx)
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// isURL reports whether endpoint carries a scheme. Bare host:port endpoints
// are treated as plaintext.
func isURL(endpoint string) bool {
	return strings.Contains(endpoint, "://")
}

func newTraceExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)

	switch cfg.Exporter {
	case "otlphttp":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()}
		if isURL(cfg.Endpoint) {
			opts = []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
		}
		exp, err = otlptracehttp.New(ctx, opts...)
	case "otlpgrpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()}
		if isURL(cfg.Endpoint) {
			opts = []otlptracegrpc.Option{otlptracegrpc.WithEndpointURL(cfg.Endpoint)}
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	case "stdout":
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	if err != nil {
		return nil, fmt.Errorf("unable to create %s trace exporter: %w", cfg.Exporter, err)
	}
	return exp, nil
}

func newMetricExporter(ctx context.Context, cfg config.TelemetryConfig) (sdkmetric.Exporter, error) {
	var (
		exp sdkmetric.Exporter
		err error
	)

	switch cfg.Exporter {
	case "otlphttp":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure()}
		if isURL(cfg.Endpoint) {
			opts = []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(cfg.Endpoint)}
		}
		exp, err = otlpmetrichttp.New(ctx, opts...)
	case "otlpgrpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure()}
		if isURL(cfg.Endpoint) {
			opts = []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpointURL(cfg.Endpoint)}
		}
		exp, err = otlpmetricgrpc.New(ctx, opts...)
	case "stdout":
		exp, err = stdoutmetric.New()
	default:
		return nil, fmt.Errorf("unknown metric exporter %q", cfg.Exporter)
	}

	if err != nil {
		return nil, fmt.Errorf("unable to create %s metric exporter: %w", cfg.Exporter, err)
	}
	return exp, nil
}
