// Package traces wires OpenTelemetry tracing into the fraud monitor's query
// path. Each KPI, detection and risk call opens one span tagged with the
// account and step window it covered.
package traces

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fraudlens/paysim-monitor"

// Options configures the exporter. An empty Endpoint leaves the global
// no-op provider in place.
type Options struct {
	ServiceName string
	Version     string
	Endpoint    string
	SampleRatio float64
}

// ShutdownFunc flushes buffered spans.
type ShutdownFunc func(context.Context) error

// Init installs a batching OTLP/gRPC tracer provider as the global one.
func Init(ctx context.Context, opts Options, logger *slog.Logger) (ShutdownFunc, error) {
	if opts.Endpoint == "" {
		logger.Info("tracing disabled (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.Version),
	))
	if err != nil {
		return nil, err
	}

	tp := NewProvider(sdktrace.NewBatchSpanProcessor(exporter), res, opts.SampleRatio)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled",
		"endpoint", opts.Endpoint, "service", opts.ServiceName, "sample_ratio", opts.SampleRatio)
	return tp.Shutdown, nil
}

// NewProvider builds a tracer provider that keeps ratio of new root spans
// and follows the parent's decision for child spans.
func NewProvider(sp sdktrace.SpanProcessor, res *resource.Resource, ratio float64) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(sp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}
	if res != nil {
		opts = append(opts, sdktrace.WithResource(res))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// StartSpan opens a span on the global tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on the span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Query returns the attributes shared by every per-account query span.
func Query(account string, stepFrom, stepTo int) []attribute.KeyValue {
	return []attribute.KeyValue{
		Account(account),
		attribute.Int("paysim.step_from", stepFrom),
		attribute.Int("paysim.step_to", stepTo),
	}
}

func Account(name string) attribute.KeyValue {
	return attribute.String("paysim.account", name)
}

func MinAmount(amount float64) attribute.KeyValue {
	return attribute.Float64("paysim.min_amount", amount)
}

func TransactionID(id int64) attribute.KeyValue {
	return attribute.Int64("paysim.transaction_id", id)
}

func Score(score int) attribute.KeyValue {
	return attribute.Int("paysim.risk_score", score)
}
