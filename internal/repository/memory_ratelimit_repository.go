package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dikeckaan/siteform/internal/model"
)

type memoryEntry struct {
	rec       model.RateLimitRecord
	expiresAt time.Time
}

// MemoryRateLimitRepository is an in-process RateLimitRepository used for
// local development and tests. Expiry is checked lazily on Get; List still
// returns expired keys so the sweep path behaves like the Postgres backend.
type MemoryRateLimitRepository struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swappable in tests to avoid sleeping through TTLs.
	now func() time.Time
}

// NewMemoryRateLimitRepository creates an empty in-memory repository.
func NewMemoryRateLimitRepository() *MemoryRateLimitRepository {
	return &MemoryRateLimitRepository{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

var _ RateLimitRepository = (*MemoryRateLimitRepository)(nil)

func (r *MemoryRateLimitRepository) Get(ctx context.Context, key string) (*model.RateLimitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok || !ent.expiresAt.After(r.now()) {
		return nil, ErrNotFound
	}
	rec := ent.rec
	return &rec, nil
}

func (r *MemoryRateLimitRepository) Put(ctx context.Context, key string, rec *model.RateLimitRecord, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = memoryEntry{rec: *rec, expiresAt: r.now().Add(ttl)}
	return nil
}

func (r *MemoryRateLimitRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

func (r *MemoryRateLimitRepository) List(ctx context.Context, cursor string, limit int) ([]string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]string, 0, len(r.entries))
	for k := range r.entries {
		if k > cursor {
			all = append(all, k)
		}
	}
	sort.Strings(all)
	if len(all) > limit {
		return all[:limit], all[limit-1], nil
	}
	return all, "", nil
}

func (r *MemoryRateLimitRepository) Ping(ctx context.Context) error {
	return nil
}
