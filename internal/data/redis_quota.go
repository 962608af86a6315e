package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// counters outlive their day by a margin so late readers still see them
const quotaKeyTTL = 48 * time.Hour

// reserveScript increments KEYS[1] only while it is below ARGV[1].
// Returns {1, count} when reserved and {0, count} when exhausted.
var reserveScript = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n >= tonumber(ARGV[1]) then
	return {0, n}
end
n = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return {1, n}
`)

// redisQuotaRepo keeps daily order counters in Redis
type redisQuotaRepo struct {
	client *redis.Client
}

// NewRedisQuotaRepo connects to redisURL and checks the connection
func NewRedisQuotaRepo(ctx context.Context, redisURL string) (repo.QuotaRepo, func() error, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &redisQuotaRepo{client: client}, client.Close, nil
}

func quotaKey(userID, date string) string {
	return fmt.Sprintf("quota:%s:%s", date, userID)
}

func (r *redisQuotaRepo) Count(ctx context.Context, userID, date string) (int, error) {
	n, err := r.client.Get(ctx, quotaKey(userID, date)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota: %w", err)
	}
	return n, nil
}

func (r *redisQuotaRepo) Reserve(ctx context.Context, userID, date string, max int) (bool, int, error) {
	res, err := reserveScript.Run(ctx, r.client,
		[]string{quotaKey(userID, date)}, max, int(quotaKeyTTL.Seconds())).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to reserve quota: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("failed to reserve quota: unexpected reply %v", res)
	}
	return res[0] == 1, int(res[1]), nil
}

// Cleanup is a no-op: counters expire on their own
func (r *redisQuotaRepo) Cleanup(ctx context.Context, beforeDate string) (int64, error) {
	return 0, nil
}
