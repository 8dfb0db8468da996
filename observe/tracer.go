package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with registry-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for a registry operation ("acquire", "open",
	// "close") on the identified resource.
	StartSpan(ctx context.Context, op string, meta ResourceMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with resource identity as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, op string, meta ResourceMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("resource.key", meta.Key),
	}
	if meta.Mode != "" {
		attrs = append(attrs, attribute.String("resource.mode", meta.Mode))
	}

	return t.tracer.Start(ctx, "registry."+op,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// nopTracer is a tracer that does nothing.
type nopTracer struct {
	noop trace.Tracer
}

// NewNopTracer returns a Tracer that records nothing.
func NewNopTracer() Tracer {
	return &nopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *nopTracer) StartSpan(ctx context.Context, op string, meta ResourceMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, "registry."+op)
}

func (t *nopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
