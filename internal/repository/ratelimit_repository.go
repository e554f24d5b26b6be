package repository

import (
	"context"
	"time"

	"github.com/dikeckaan/siteform/internal/model"
)

// RateLimitRepository is the key-value contract the admission gate and the
// cleanup paths run against. Keys are derived identity hashes, never raw
// addresses.
//
// Implementations may be eventually consistent: a Put is not guaranteed to
// be visible to a Get issued from another replica immediately. Callers must
// not rely on read-your-writes across processes. The contract offers no
// compare-and-swap, so two near-simultaneous submissions can both pass the
// window check before either write lands; the worst case is a brief double
// notification, which the gate accepts.
type RateLimitRepository interface {
	// Get returns the live record for key, or ErrNotFound when absent or
	// already expired.
	Get(ctx context.Context, key string) (*model.RateLimitRecord, error)

	// Put upserts the record under key with the given TTL, replacing any
	// existing record and restarting its expiry countdown.
	Put(ctx context.Context, key string, rec *model.RateLimitRecord, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is a no-op, not an error.
	Delete(ctx context.Context, key string) error

	// List returns up to limit keys starting from cursor (empty cursor
	// starts the scan). The returned cursor is empty when the scan is
	// complete. Only cleanup and debug paths call this; it never runs on
	// the submission path.
	List(ctx context.Context, cursor string, limit int) (keys []string, next string, err error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
