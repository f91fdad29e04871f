// Package observe provides observability primitives for guarded calls.
//
// It is a pure instrumentation library: no admission decisions, no
// transport, no I/O beyond exporter setup. The resilience packages emit
// through the Sink interface and log through Logger; wiring real
// exporters behind them is optional and stays out of the decision path.
package observe
