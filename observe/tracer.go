package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ServiceMeta identifies the remote service a guarded call targets.
type ServiceMeta struct {
	Service   string // target service name (required)
	Namespace string // mesh namespace (may be empty)
	Caller    string // calling service (optional)
	Version   string // target service version (optional)
}

// SpanName returns the deterministic span name for calls to this service.
// Format: mesh.call.<namespace>.<service> or mesh.call.<service>
func (m ServiceMeta) SpanName() string {
	if m.Namespace != "" {
		return "mesh.call." + m.Namespace + "." + m.Service
	}
	return "mesh.call." + m.Service
}

// ServiceID returns the fully qualified service identifier, used as the
// key for breakers, trackers, and replicated circuit state.
func (m ServiceMeta) ServiceID() string {
	if m.Namespace != "" {
		return m.Namespace + "." + m.Service
	}
	return m.Service
}

// Validate checks that the metadata names a service.
func (m ServiceMeta) Validate() error {
	if m.Service == "" {
		return ErrMissingService
	}
	return nil
}

// Tracer wraps OpenTelemetry tracing with call-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan must honor cancellation/deadlines and return ctx.Err() when canceled.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a guarded call.
	StartSpan(ctx context.Context, meta ServiceMeta) (context.Context, trace.Span)

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

// StartSpan starts a new span with service metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta ServiceMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("mesh.service", meta.ServiceID()),
		attribute.Bool("mesh.error", false), // Will be updated in EndSpan if error
	}

	if meta.Namespace != "" {
		attrs = append(attrs, attribute.String("mesh.namespace", meta.Namespace))
	}
	if meta.Caller != "" {
		attrs = append(attrs, attribute.String("mesh.caller", meta.Caller))
	}
	if meta.Version != "" {
		attrs = append(attrs, attribute.String("mesh.version", meta.Version))
	}

	ctx, span := t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("mesh.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// NewNopTracer creates a no-op tracer.
func NewNopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta ServiceMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
