package observe

import (
	"context"
	"time"
)

// CallFunc is the signature for guarded service calls.
// This is the standard function signature that Middleware wraps.
type CallFunc func(ctx context.Context) (any, error)

// Middleware wraps guarded calls with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe CallFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped call are recorded and propagated unchanged.
//   - Ownership: Result values are passed through without modification.
type Middleware struct {
	tracer Tracer
	sink   Sink
	logger Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, sink Sink, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewNopTracer()
	}
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer: tracer,
		sink:   sink,
		logger: logger,
	}
}

// Wrap wraps a CallFunc with tracing, metrics, and logging for the given service.
func (m *Middleware) Wrap(meta ServiceMeta, fn CallFunc) CallFunc {
	return func(ctx context.Context) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)

		start := time.Now()
		result, err := fn(ctx)
		duration := time.Since(start)

		// End span (records error status if err != nil)
		m.tracer.EndSpan(span, err)

		tags := []Tag{{Key: "service", Value: meta.ServiceID()}}
		m.sink.Increment(ctx, "mesh.call.total", tags...)
		if err != nil {
			m.sink.Increment(ctx, "mesh.call.errors", tags...)
		}
		m.sink.Observe(ctx, "mesh.call.duration_ms", float64(duration.Milliseconds()), tags...)

		callLogger := m.logger.WithService(meta)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}

		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			callLogger.Error(ctx, "guarded call failed", fields...)
		} else {
			callLogger.Debug(ctx, "guarded call completed", fields...)
		}

		return result, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
// This is a convenience function for common use cases.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	return NewMiddleware(NewTracer(obs.Tracer()), obs.Sink(), obs.Logger()), nil
}
