package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// orderRepo stores audit records and daily stats in SQLite
type orderRepo struct {
	db *sql.DB
}

// NewOrderRepo creates an order repository
func NewOrderRepo(db *sql.DB) repo.OrderRepo {
	return &orderRepo{db: db}
}

// NewStatsRepo creates a stats repository over the same database
func NewStatsRepo(db *sql.DB) repo.StatsRepo {
	return &orderRepo{db: db}
}

// SaveOrder inserts a record
func (r *orderRepo) SaveOrder(ctx context.Context, o *domain.OrderRecord) error {
	var phone any
	if o.Phone != "" {
		phone = o.Phone
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, user_name, phone, text, room_id, room_title, intent, delivered, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.UserID, o.UserName, phone, o.Text, o.RoomID, o.RoomTitle, string(o.Intent), o.Delivered, o.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// RecentOrders returns the newest records first
func (r *orderRepo) RecentOrders(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, user_name, phone, text, room_id, room_title, intent, delivered, created_at
		FROM orders
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.OrderRecord
	for rows.Next() {
		var o domain.OrderRecord
		var phone sql.NullString
		var intent string
		var createdAt int64
		if err := rows.Scan(&o.ID, &o.UserID, &o.UserName, &phone, &o.Text, &o.RoomID, &o.RoomTitle, &intent, &o.Delivered, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Phone = phone.String
		o.Intent = domain.Intent(intent)
		o.CreatedAt = time.Unix(createdAt, 0)
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// CleanupOrders deletes records created before t
func (r *orderRepo) CleanupOrders(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE created_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up orders: %w", err)
	}
	return result.RowsAffected()
}

// AddStats upserts the counters of date
func (r *orderRepo) AddStats(ctx context.Context, date string, d domain.StatsDelta) error {
	if d.IsZero() {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stats (date, processed, forwarded, filtered) VALUES (?, ?, ?, ?)
		ON CONFLICT (date) DO UPDATE SET
			processed = processed + excluded.processed,
			forwarded = forwarded + excluded.forwarded,
			filtered = filtered + excluded.filtered
	`, date, d.Processed, d.Forwarded, d.Filtered)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}
	return nil
}

// StatsFor returns one day's counters, zero when the day has none
func (r *orderRepo) StatsFor(ctx context.Context, date string) (*domain.StatsAggregate, error) {
	agg := &domain.StatsAggregate{Date: date}
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(processed), 0), COALESCE(SUM(forwarded), 0), COALESCE(SUM(filtered), 0)
		FROM stats WHERE date = ?
	`, date).Scan(&agg.Processed, &agg.Forwarded, &agg.Filtered)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	return agg, nil
}

// TotalStats sums every day
func (r *orderRepo) TotalStats(ctx context.Context) (*domain.StatsAggregate, error) {
	agg := &domain.StatsAggregate{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(processed), 0), COALESCE(SUM(forwarded), 0), COALESCE(SUM(filtered), 0)
		FROM stats
	`).Scan(&agg.Processed, &agg.Forwarded, &agg.Filtered)
	if err != nil {
		return nil, fmt.Errorf("failed to read total stats: %w", err)
	}
	return agg, nil
}
