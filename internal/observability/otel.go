// Package observability sets up OpenTelemetry tracing for the service and
// adapts ingestion progress into span events.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-rewards-backend/internal/config"
	"github.com/tbourn/go-rewards-backend/internal/ingest"
)

// serviceNamespace groups every binary of the rewards backend.
const serviceNamespace = "rewards"

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Test seams.
var (
	newExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	}

	newResource = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		return resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(version),
				semconv.ServiceNamespace(serviceNamespace),
			),
		)
	}
)

// SetupOTel installs a batching OTLP/gRPC tracer provider and the W3C
// propagators as globals. When tracing is disabled it changes nothing and
// returns a no-op Shutdown. Globals are only touched once every piece has
// been built.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (Shutdown, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	exp, err := newExporter(ctx, opts...)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg.ServiceName, version)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// IngestObserver records ingestion progress as events on the span in ctx.
// It is a no-op observer when ctx carries no recording span.
func IngestObserver(ctx context.Context) ingest.Observer {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}
	return func(ev ingest.Event) {
		switch ev.Kind {
		case ingest.EventCompleted:
			span.AddEvent("ingest.completed", trace.WithAttributes(
				attribute.Int("ingest.success_count", ev.SuccessCount),
				attribute.Int("ingest.total", ev.Total),
			))
		case ingest.EventRetry:
			span.AddEvent("ingest.retry", trace.WithAttributes(
				attribute.String("coupon.code", ev.Record.Code),
				attribute.Int("ingest.row", ev.Record.Row),
				attribute.Int("ingest.attempt", ev.Record.Attempts),
				attribute.String("ingest.retry_in", ev.RetryIn.String()),
			))
		default:
			// pending rows are announced in bulk; only real moves are worth an event
			if ev.Record.Status == ingest.StatusPending {
				return
			}
			span.AddEvent("ingest.transition", trace.WithAttributes(
				attribute.String("coupon.code", ev.Record.Code),
				attribute.Int("ingest.row", ev.Record.Row),
				attribute.String("ingest.from", string(ev.From)),
				attribute.String("ingest.to", string(ev.Record.Status)),
			))
		}
	}
}
