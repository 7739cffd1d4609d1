// Package telemetry builds the process-wide trace.TracerProvider every
// service's Tracer field pulls its spans from. When no collector
// endpoint is configured it falls back to a no-op provider, so tracing
// is an enrichment, never a startup dependency.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/escrowcore/ledgercore/internal/mlog"
)

const serviceName = "escrowd"

// Provider wraps the SDK tracer provider so callers get a trace.Tracer
// without depending on the SDK package directly, and so Shutdown can
// be deferred uniformly whether or not export is enabled.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Noop returns a Provider backed by the global no-op tracer, used when
// no OTLP endpoint is configured.
func Noop() *Provider {
	return &Provider{}
}

// New connects to the OTLP/gRPC collector at endpoint and installs it
// as the global tracer provider, mirroring the teacher's
// Telemetry.InitializeTelemetry shape (resource + batch span processor)
// narrowed to tracing, since this project's logging already goes
// through internal/mlog and nothing here emits OTLP metrics.
func New(ctx context.Context, endpoint, env string) (*Provider, error) {
	if endpoint == "" {
		return Noop(), nil
	}

	resource, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var exporter *otlptrace.Exporter

	exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: dial otlp collector: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Provider{tp: tp}, nil
}

// Tracer returns the named tracer every domain service composes its
// spans from.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.tp == nil {
		return trace.NewNoopTracerProvider().Tracer(name)
	}

	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans, best-effort, logging rather than
// failing the caller — mirrors App.Close's shutdown style for the
// other optional connections.
func (p *Provider) Shutdown(ctx context.Context, logger mlog.Logger) {
	if p == nil || p.tp == nil {
		return
	}

	if err := p.tp.Shutdown(ctx); err != nil {
		logger.Warnf("telemetry: shutdown: %v", err)
	}
}
