// Package cache provides the stage cache backends used by pipeline sources.
//
// Three backends exist: Memory (process local, TTL ignored), Disk (sqlite, TTL
// enforced) and Redis (shared, every value HMAC signed). Backends built from
// equal Descriptors are shared through a Registry.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/jask/dashlego/core/errs"
)

// DefaultTTL applies when neither the descriptor nor the Set call gives one.
const DefaultTTL = 300 * time.Second

var (
	// ErrNotFound is returned by Get for absent or expired keys.
	ErrNotFound = &errs.Error{Kind: errs.KindCache, Op: "get", Err: errors.New("key not found")}
	// ErrIntegrity is returned when a stored value fails signature verification.
	ErrIntegrity = &errs.Error{Kind: errs.KindCache, Op: "verify", Err: errors.New("signature mismatch")}
)

// Backend stores frames by key.
type Backend interface {
	Contains(ctx context.Context, key string) (bool, error)
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (dataframe.DataFrame, error)
	// Set stores df. A zero ttl means the backend default.
	Set(ctx context.Context, key string, df dataframe.DataFrame, ttl time.Duration) error
	Close() error
}

// IsNotFound reports whether err is a cache miss rather than a failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
