package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
	ErrNilClient  = errors.New("cache: redis client is nil")
)

// Cache stores successful response payloads so the fallback chain can
// serve stale data while the primary path is down.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods honor cancellation/deadlines where applicable.
// - Errors: Get never errors; it returns (nil, false) on miss, expiry,
//   or backend failure, so a broken cache degrades to a miss.
type Cache interface {
	// Get retrieves a cached value. Returns (nil, false) on miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL. TTL<=0 means no caching.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached value. Idempotent, no error on miss.
	Delete(ctx context.Context, key string) error
}

// ValidateKey checks whether a key is usable for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
