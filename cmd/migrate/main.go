// Command migrate creates the schema required by the Postgres store backend.
// Redis and memory backends need no migration.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/dikeckaan/siteform/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS rate_limit_records (
    key          text PRIMARY KEY,
    email        text NOT NULL,
    subject      text NOT NULL,
    message      text,
    submitted_at text NOT NULL,
    expires_at   timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS rate_limit_records_expires_at_idx
    ON rate_limit_records (expires_at);
`

func main() {
	_ = godotenv.Load()
	logging.Setup()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logging.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logging.Fatal("connect failed", "error", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		logging.Fatal("migration failed", "error", err)
	}
	slog.Info("schema ready")
}
