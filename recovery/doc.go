// Package recovery holds the policies deciding how a tripped service
// returns to full traffic.
//
// A Strategy answers four questions for the circuit that owns it: may a
// probe start now, what fraction of traffic is admitted while probing,
// has the service fully recovered, and was ramp progress reset. Four
// policies ship with the package:
//
//   - Gradual ramps from a base fraction in fixed steps, one per window
//     of consecutive successes, and aborts to base on any failure.
//   - ExponentialBackoff spaces probes at base * 2^attempt with a retry
//     cap.
//   - Partial recovers named features one at a time in priority order,
//     shedding the least important ones under failure.
//   - Adaptive moves the admitted fraction up and down with outcomes
//     and refuses to probe while external health gauges are unhealthy.
//
// Strategies never touch the network or emit telemetry; the circuit
// breaker composing them does both.
package recovery
