package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Keyer derives deterministic cache keys from a service name and the
// request payload.
//
// Contract:
// - Determinism: the same service and payload must always produce the
//   same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key for one call.
	Key(service string, payload any) (string, error)
}

// DefaultKeyer hashes the JSON form of the payload.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key shaped
// mesh:<service>:<hash>, where hash is the first 16 hex characters of
// SHA-256 over the payload's JSON form. encoding/json sorts map keys,
// so marshalling is already deterministic.
func (k *DefaultKeyer) Key(service string, payload any) (string, error) {
	if service == "" {
		return "", ErrInvalidKey
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("cache: encode payload: %w", err)
	}

	hash := sha256.Sum256(encoded)
	return fmt.Sprintf("mesh:%s:%s", service, hex.EncodeToString(hash[:8])), nil
}

var _ Keyer = (*DefaultKeyer)(nil)
