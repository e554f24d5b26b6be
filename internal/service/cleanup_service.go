package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dikeckaan/siteform/internal/model"
	"github.com/dikeckaan/siteform/internal/repository"
)

const listPageSize = 100

// CleanupService prunes old rate-limit records. TTL on every write is the
// correctness mechanism; the sweep is hygiene on top of it, catching records
// whose TTL was misconfigured or that the backend cannot expire natively.
type CleanupService interface {
	// Sweep deletes records older than the retention period and reclaims
	// listed keys whose record has already expired. Keys that vanish
	// mid-scan are not errors.
	Sweep(ctx context.Context) (model.CleanupResult, error)

	// PurgeAll deletes every record and reports how many. Running it twice
	// in a row yields N then 0.
	PurgeAll(ctx context.Context) (model.CleanupResult, error)
}

type cleanupServiceImpl struct {
	repo      repository.RateLimitRepository
	retention time.Duration
}

// NewCleanupService creates a CleanupService. retention must be strictly
// longer than the rate-limit window (validated at config load).
func NewCleanupService(repo repository.RateLimitRepository, retention time.Duration) CleanupService {
	return &cleanupServiceImpl{repo: repo, retention: retention}
}

func (s *cleanupServiceImpl) Sweep(ctx context.Context) (model.CleanupResult, error) {
	var res model.CleanupResult
	cursor := ""
	for {
		keys, next, err := s.repo.List(ctx, cursor, listPageSize)
		if err != nil {
			return res, err
		}
		for _, key := range keys {
			res.Scanned++
			rec, err := s.repo.Get(ctx, key)
			if errors.Is(err, repository.ErrNotFound) {
				// Listed but no live record: the backend kept an expired
				// entry around (Postgres rows, memory map). Reclaim it;
				// for a key deleted mid-scan this is a no-op.
				if err := s.repo.Delete(ctx, key); err != nil {
					slog.Warn("sweep delete failed", "error", err)
					continue
				}
				res.DeletedCount++
				continue
			}
			if err != nil {
				slog.Warn("sweep read failed, skipping key", "error", err)
				continue
			}
			ts, err := rec.Time()
			if err != nil {
				// A record that cannot be parsed can never age out on its
				// own; reclaim it now.
				slog.Warn("sweep found malformed record, deleting", "key", key)
			} else if time.Since(ts) <= s.retention {
				continue
			}
			if err := s.repo.Delete(ctx, key); err != nil {
				slog.Warn("sweep delete failed", "error", err)
				continue
			}
			res.DeletedCount++
		}
		if next == "" {
			return res, nil
		}
		cursor = next
	}
}

func (s *cleanupServiceImpl) PurgeAll(ctx context.Context) (model.CleanupResult, error) {
	var res model.CleanupResult
	cursor := ""
	for {
		keys, next, err := s.repo.List(ctx, cursor, listPageSize)
		if err != nil {
			return res, err
		}
		for _, key := range keys {
			res.Scanned++
			if err := s.repo.Delete(ctx, key); err != nil {
				slog.Warn("purge delete failed", "error", err)
				continue
			}
			res.DeletedCount++
		}
		if next == "" {
			return res, nil
		}
		cursor = next
	}
}
