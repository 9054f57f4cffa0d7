package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresLimiter stores counters in the rate_limits table so that every
// worker process draws from the same quota. Each Hit is a single upsert, which
// Postgres applies atomically per row.
type PostgresLimiter struct {
	db *sqlx.DB
}

func NewPostgresLimiter(db *sqlx.DB) *PostgresLimiter {
	return &PostgresLimiter{db: db}
}

func (l *PostgresLimiter) TooManyAttempts(ctx context.Context, key string, max int) (bool, error) {
	if max <= 0 {
		return false, nil
	}

	var hits int
	query := `SELECT hits FROM rate_limits WHERE key = $1 AND expires_at > now()`
	err := l.db.GetContext(ctx, &hits, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read rate limit %s: %w", key, err)
	}
	return hits >= max, nil
}

func (l *PostgresLimiter) Hit(ctx context.Context, key string, decay time.Duration) error {
	query := `
		INSERT INTO rate_limits (key, hits, expires_at)
		VALUES ($1, 1, now() + ($2 * interval '1 second'))
		ON CONFLICT (key) DO UPDATE SET
			hits = CASE WHEN rate_limits.expires_at <= now() THEN 1 ELSE rate_limits.hits + 1 END,
			expires_at = CASE WHEN rate_limits.expires_at <= now() THEN EXCLUDED.expires_at ELSE rate_limits.expires_at END`

	if _, err := l.db.ExecContext(ctx, query, key, decay.Seconds()); err != nil {
		return fmt.Errorf("hit rate limit %s: %w", key, err)
	}
	return nil
}
