// Package cache stores successful response payloads for degraded
// serving.
//
// It provides the Cache interface with a bounded in-process LRU and a
// shared Redis implementation, SHA-256-based key derivation from
// request payloads, and TTL policies. The fallback chain reads it when
// the primary path fails.
package cache
