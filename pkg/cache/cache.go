// Package cache provides a generic TTL key/value cache used for index
// version listings.
//
// The engine's environment store (pkg/store) is the durable source of
// truth; this package only memoizes index responses so that repeated
// resolutions do not hammer remote indexes. Three backends are provided:
// file (default, survives process restarts), redis (shared across hosts),
// and null (caching disabled).
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached value for key. The second return is false
	// on a miss; an expired or unreadable entry counts as a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
