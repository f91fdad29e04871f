package observe

import (
	"context"
	"testing"
)

func TestObserverContract_Noops(t *testing.T) {
	cfg := Config{
		ServiceName: "observe-test",
		Tracing: TracingConfig{
			Enabled:  false,
			Exporter: "none",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Exporter: "none",
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}

	obs, err := NewObserver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}

	if obs.Tracer() == nil {
		t.Fatalf("expected non-nil tracer")
	}
	if obs.Meter() == nil {
		t.Fatalf("expected non-nil meter")
	}
	if obs.Sink() == nil {
		t.Fatalf("expected non-nil sink")
	}
	if obs.Logger() == nil {
		t.Fatalf("expected non-nil logger")
	}
}

func TestLoggerContract_WithService(t *testing.T) {
	logger := &noopLogger{}
	if logger.WithService(ServiceMeta{Service: "noop"}) == nil {
		t.Fatalf("WithService should return non-nil logger")
	}
}

func TestSinkContract_NoPanic(t *testing.T) {
	var sink Sink = NopSink{}
	sink.Increment(context.Background(), "mesh.call.total")
	sink.Gauge(context.Background(), "mesh.circuit.state", 0)
	sink.Observe(context.Background(), "mesh.call.duration_ms", 10)
}

func TestTracerContract_NoPanic(t *testing.T) {
	tracer := NewNopTracer()
	ctx := context.Background()
	_, span := tracer.StartSpan(ctx, ServiceMeta{Service: "noop"})
	tracer.EndSpan(span, nil)
}
