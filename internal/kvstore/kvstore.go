// Package kvstore provides access to the remote cache backend: a key-value
// store reached over a request/response REST protocol. The protocol exposes
// single-command endpoints (GET/SET/SETEX/DEL/EXISTS/INCRBY/EXPIRE/MGET/PING)
// and has no server-side key scanning, which is why pattern-based deletion
// cannot be implemented on top of it.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps transport-level failures against the backend.
var ErrUnavailable = errors.New("kvstore: backend unavailable")

// Store is the command surface of the remote key-value backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the raw string value for key. The boolean reports
	// whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key without expiration.
	Set(ctx context.Context, key, value string) error

	// SetEx stores value under key, expiring after ttl.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes key, returning the number of keys removed (0 or 1).
	Del(ctx context.Context, key string) (int, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// IncrBy atomically adds delta to the integer value at key,
	// initializing it to zero when absent, and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Expire sets a ttl on an existing key. The boolean reports whether
	// the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// MGet returns the values for keys in order; absent keys yield nil.
	MGet(ctx context.Context, keys ...string) ([]*string, error)

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error
}
