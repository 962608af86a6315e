package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// quotaRepo keeps daily order counters in SQLite
type quotaRepo struct {
	db *sql.DB
}

// NewQuotaRepo creates a SQLite quota repository
func NewQuotaRepo(db *sql.DB) repo.QuotaRepo {
	return &quotaRepo{db: db}
}

// Count returns the user's counter for date, 0 when absent
func (r *quotaRepo) Count(ctx context.Context, userID, date string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT order_count FROM user_orders WHERE user_id = ? AND date = ?
	`, userID, date).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota: %w", err)
	}
	return n, nil
}

// Reserve increments the counter in one statement. The conditional
// upsert returns no row once the counter has reached max.
func (r *quotaRepo) Reserve(ctx context.Context, userID, date string, max int) (bool, int, error) {
	if max <= 0 {
		n, err := r.Count(ctx, userID, date)
		return false, n, err
	}

	var n int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO user_orders (user_id, date, order_count) VALUES (?, ?, 1)
		ON CONFLICT (user_id, date) DO UPDATE
			SET order_count = order_count + 1
			WHERE order_count < ?
		RETURNING order_count
	`, userID, date, max).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		n, err := r.Count(ctx, userID, date)
		return false, n, err
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to reserve quota: %w", err)
	}
	return true, n, nil
}

// Cleanup drops counters older than beforeDate
func (r *quotaRepo) Cleanup(ctx context.Context, beforeDate string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_orders WHERE date < ?`, beforeDate)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up quotas: %w", err)
	}
	return result.RowsAffected()
}
