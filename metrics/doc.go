// Package metrics maintains windowed call statistics for one service.
//
// A Collector accumulates request outcomes, latencies, resource gauges,
// circuit trips, and recovery attempts into rotating time buckets. The
// other guard components consume its aggregates: Snapshot pools the live
// window into totals, interpolated latency percentiles, trailing
// baselines, trend slopes, and circuit-trip patterns; HealthStatus
// collapses the same window into a 0-1 score with a categorical reading.
//
// Samples that land far outside the current bucket's distribution are
// flagged as anomalies. Anomalies are warnings only: they are logged,
// counted through the sink, and handed to the optional OnAnomaly
// callback, but never surface as errors to callers.
//
// Recording is lock-cheap and never blocks on I/O; sink emission happens
// outside the collector lock. Bucket eviction runs on a cleanup loop
// (Start/Stop) rather than inline, while reads filter to the live window
// either way.
package metrics
