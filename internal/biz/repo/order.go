package repo

import (
	"context"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

// OrderRepo stores order audit records
type OrderRepo interface {
	// SaveOrder persists a record
	SaveOrder(ctx context.Context, order *domain.OrderRecord) error

	// RecentOrders returns the newest records first
	RecentOrders(ctx context.Context, limit int) ([]*domain.OrderRecord, error)

	// CleanupOrders deletes records created before t
	CleanupOrders(ctx context.Context, before time.Time) (int64, error)
}

// StatsRepo stores the daily counters
type StatsRepo interface {
	// AddStats applies delta to the counters of date, creating the row if needed
	AddStats(ctx context.Context, date string, delta domain.StatsDelta) error

	// StatsFor returns the counters of one date
	StatsFor(ctx context.Context, date string) (*domain.StatsAggregate, error)

	// TotalStats returns the sum over all dates
	TotalStats(ctx context.Context) (*domain.StatsAggregate, error)
}
