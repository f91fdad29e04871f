package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Tag is a key/value dimension attached to an emitted metric.
type Tag struct {
	Key   string
	Value string
}

// Sink receives counters, gauges, and distribution samples from the
// resilience engine.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; never block on network I/O inline.
// - Errors: emission is best-effort and must not panic. Callers never
//   see a sink failure; wrap third-party sinks with SafeSink to enforce
//   this for implementations outside your control.
type Sink interface {
	// Increment adds one to the named counter.
	Increment(ctx context.Context, name string, tags ...Tag)

	// Gauge records the current value of the named gauge.
	Gauge(ctx context.Context, name string, value float64, tags ...Tag)

	// Observe records one sample of the named distribution.
	Observe(ctx context.Context, name string, value float64, tags ...Tag)
}

// meterSink is a Sink backed by an OpenTelemetry meter. Instruments are
// created lazily per metric name and cached for the life of the sink.
type meterSink struct {
	meter metric.Meter

	mu       sync.RWMutex
	counters map[string]metric.Int64Counter
	gauges   map[string]metric.Float64Gauge
	hists    map[string]metric.Float64Histogram
}

// NewMeterSink creates a Sink that emits through the given meter.
func NewMeterSink(meter metric.Meter) Sink {
	return &meterSink{
		meter:    meter,
		counters: make(map[string]metric.Int64Counter),
		gauges:   make(map[string]metric.Float64Gauge),
		hists:    make(map[string]metric.Float64Histogram),
	}
}

func (s *meterSink) Increment(ctx context.Context, name string, tags ...Tag) {
	s.mu.RLock()
	c, ok := s.counters[name]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		c, ok = s.counters[name]
		if !ok {
			var err error
			c, err = s.meter.Int64Counter(name)
			if err != nil {
				s.mu.Unlock()
				return // drop the sample, emission is best-effort
			}
			s.counters[name] = c
		}
		s.mu.Unlock()
	}
	c.Add(ctx, 1, metric.WithAttributes(tagAttrs(tags)...))
}

func (s *meterSink) Gauge(ctx context.Context, name string, value float64, tags ...Tag) {
	s.mu.RLock()
	g, ok := s.gauges[name]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		g, ok = s.gauges[name]
		if !ok {
			var err error
			g, err = s.meter.Float64Gauge(name)
			if err != nil {
				s.mu.Unlock()
				return
			}
			s.gauges[name] = g
		}
		s.mu.Unlock()
	}
	g.Record(ctx, value, metric.WithAttributes(tagAttrs(tags)...))
}

func (s *meterSink) Observe(ctx context.Context, name string, value float64, tags ...Tag) {
	s.mu.RLock()
	h, ok := s.hists[name]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		h, ok = s.hists[name]
		if !ok {
			var err error
			h, err = s.meter.Float64Histogram(name)
			if err != nil {
				s.mu.Unlock()
				return
			}
			s.hists[name] = h
		}
		s.mu.Unlock()
	}
	h.Record(ctx, value, metric.WithAttributes(tagAttrs(tags)...))
}

func tagAttrs(tags []Tag) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for _, t := range tags {
		attrs = append(attrs, attribute.String(t.Key, t.Value))
	}
	return attrs
}

// NopSink is a Sink that discards everything.
type NopSink struct{}

func (NopSink) Increment(ctx context.Context, name string, tags ...Tag)              {}
func (NopSink) Gauge(ctx context.Context, name string, value float64, tags ...Tag)   {}
func (NopSink) Observe(ctx context.Context, name string, value float64, tags ...Tag) {}

// safeSink shields callers from a misbehaving Sink implementation.
type safeSink struct {
	inner Sink
	log   Logger
}

// SafeSink wraps a Sink so that a panic inside the implementation is
// recovered and logged instead of propagating into the admission path.
// Sinks constructed by this package already honor the no-panic contract;
// the wrapper exists for sinks supplied by callers.
func SafeSink(inner Sink, log Logger) Sink {
	if inner == nil {
		return NopSink{}
	}
	if log == nil {
		log = NopLogger()
	}
	return &safeSink{inner: inner, log: log}
}

func (s *safeSink) Increment(ctx context.Context, name string, tags ...Tag) {
	defer s.recover(ctx, name)
	s.inner.Increment(ctx, name, tags...)
}

func (s *safeSink) Gauge(ctx context.Context, name string, value float64, tags ...Tag) {
	defer s.recover(ctx, name)
	s.inner.Gauge(ctx, name, value, tags...)
}

func (s *safeSink) Observe(ctx context.Context, name string, value float64, tags ...Tag) {
	defer s.recover(ctx, name)
	s.inner.Observe(ctx, name, value, tags...)
}

func (s *safeSink) recover(ctx context.Context, name string) {
	if r := recover(); r != nil {
		s.log.Warn(ctx, "metrics sink panicked",
			Field{Key: "metric", Value: name},
			Field{Key: "panic", Value: r},
		)
	}
}
