package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore replicates circuit state across instances so every client
// of a failing service can fail fast, not just the one that tripped.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: operations must honor the deadline; the breaker bounds
//   every call with a short timeout.
// - Errors: Load returns ErrStateNotFound when no state exists. Any
//   other error makes the breaker fall back to its local state.
type StateStore interface {
	// Load returns the replicated state for the service.
	Load(ctx context.Context, service string) (State, error)

	// Store replicates a state transition for the service.
	Store(ctx context.Context, service string, state State) error
}

// NopStore is a StateStore that keeps nothing. Load always reports
// ErrStateNotFound.
type NopStore struct{}

func (NopStore) Load(context.Context, string) (State, error) {
	return StateClosed, ErrStateNotFound
}

func (NopStore) Store(context.Context, string, State) error { return nil }

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	// Client is the Redis client to use. Required.
	Client *redis.Client

	// KeyPrefix namespaces the state keys. Default: "meshguard:circuit:"
	KeyPrefix string

	// TTL expires replicated state so a crashed instance cannot pin a
	// service open forever. Default: 5 minutes
	TTL time.Duration
}

// RedisStore replicates circuit state through Redis, one key per
// service.
type RedisStore struct {
	config RedisStoreConfig
}

// NewRedisStore creates a Redis-backed StateStore.
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	if config.Client == nil {
		return nil, errors.New("breaker: redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "meshguard:circuit:"
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}

	return &RedisStore{config: config}, nil
}

// Load returns the replicated state for the service, or
// ErrStateNotFound when the key is absent or holds garbage.
func (s *RedisStore) Load(ctx context.Context, service string) (State, error) {
	val, err := s.config.Client.Get(ctx, s.key(service)).Result()
	if errors.Is(err, redis.Nil) {
		return StateClosed, ErrStateNotFound
	}
	if err != nil {
		return StateClosed, fmt.Errorf("breaker: load state: %w", err)
	}

	state, err := ParseState(val)
	if err != nil {
		// A foreign writer corrupted the key. Treat it as absent
		// rather than poisoning admission decisions.
		return StateClosed, ErrStateNotFound
	}
	return state, nil
}

// Store replicates a state transition for the service.
func (s *RedisStore) Store(ctx context.Context, service string, state State) error {
	err := s.config.Client.Set(ctx, s.key(service), state.String(), s.config.TTL).Err()
	if err != nil {
		return fmt.Errorf("breaker: store state: %w", err)
	}
	return nil
}

func (s *RedisStore) key(service string) string {
	return s.config.KeyPrefix + service
}

var (
	_ StateStore = NopStore{}
	_ StateStore = (*RedisStore)(nil)
)
