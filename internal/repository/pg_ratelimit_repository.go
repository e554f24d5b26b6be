package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dikeckaan/siteform/internal/model"
)

// PgRateLimitRepository is the PostgreSQL implementation of
// RateLimitRepository. Postgres has no native key expiry, so Get treats rows
// past expires_at as absent and the active-sweep cleanup removes them for
// real.
type PgRateLimitRepository struct {
	pool *pgxpool.Pool
}

// NewPgRateLimitRepository creates a repository backed by the given pool.
func NewPgRateLimitRepository(pool *pgxpool.Pool) *PgRateLimitRepository {
	return &PgRateLimitRepository{pool: pool}
}

var _ RateLimitRepository = (*PgRateLimitRepository)(nil)

func (r *PgRateLimitRepository) Get(ctx context.Context, key string) (*model.RateLimitRecord, error) {
	rec := &model.RateLimitRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT email, subject, COALESCE(message, ''), submitted_at
		 FROM rate_limit_records
		 WHERE key = $1 AND expires_at > now()`,
		key).Scan(&rec.Email, &rec.Subject, &rec.Message, &rec.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select record: %w", err)
	}
	return rec, nil
}

func (r *PgRateLimitRepository) Put(ctx context.Context, key string, rec *model.RateLimitRecord, ttl time.Duration) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO rate_limit_records (key, email, subject, message, submitted_at, expires_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, now() + $6)
		 ON CONFLICT (key) DO UPDATE SET
		   email = EXCLUDED.email,
		   subject = EXCLUDED.subject,
		   message = EXCLUDED.message,
		   submitted_at = EXCLUDED.submitted_at,
		   expires_at = EXCLUDED.expires_at`,
		key, rec.Email, rec.Subject, rec.Message, rec.Timestamp, ttl)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (r *PgRateLimitRepository) Delete(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM rate_limit_records WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// List pages by key order; the cursor is the last key of the previous page.
// Expired rows are included on purpose so the sweep can reclaim them.
func (r *PgRateLimitRepository) List(ctx context.Context, cursor string, limit int) ([]string, string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key FROM rate_limit_records WHERE key > $1 ORDER BY key LIMIT $2`,
		cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, "", err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(keys) < limit {
		return keys, "", nil
	}
	return keys, keys[len(keys)-1], nil
}

func (r *PgRateLimitRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
