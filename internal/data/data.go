package data

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/infra/feishu"
	"github.com/orderrelay/feishu-order-relay/internal/infra/openai"
)

// Repositories contains all repositories
type Repositories struct {
	Rules      repo.RuleRepo
	Rooms      repo.RoomRepo
	Quota      repo.QuotaRepo
	Cooldown   repo.CooldownRepo
	Orders     repo.OrderRepo
	Stats      repo.StatsRepo
	Classifier repo.ClassifierRepo
	Delivery   repo.DeliveryRepo
	Profiles   repo.ProfileRepo

	closers []func() error
}

// Options selects the backing services
type Options struct {
	DBPath   string
	RedisURL string // empty keeps quota counters in SQLite
}

// NewStoreRepositories opens the store-backed repositories only. The
// admin MCP server uses these without any Feishu or OpenAI connection.
func NewStoreRepositories(ctx context.Context, opts Options, log zerolog.Logger) (*Repositories, error) {
	db, err := OpenDB(opts.DBPath)
	if err != nil {
		return nil, err
	}
	return newStore(ctx, db, opts, log)
}

// NewRepositories creates all repositories
func NewRepositories(
	ctx context.Context,
	opts Options,
	feishuClient *feishu.Client,
	aiClient *openai.Client,
	log zerolog.Logger,
) (*Repositories, error) {
	repos, err := NewStoreRepositories(ctx, opts, log)
	if err != nil {
		return nil, err
	}
	repos.Classifier = NewClassifierRepo(aiClient, log)
	repos.Delivery = NewDeliveryRepo(feishuClient)
	repos.Profiles = NewProfileRepo(feishuClient)
	return repos, nil
}

func newStore(ctx context.Context, db *sql.DB, opts Options, log zerolog.Logger) (*Repositories, error) {
	repos := &Repositories{
		Rules:    NewRuleRepo(db),
		Rooms:    NewRoomRepo(db),
		Quota:    NewQuotaRepo(db),
		Cooldown: NewCooldownRepo(),
		Orders:   NewOrderRepo(db),
		Stats:    NewStatsRepo(db),
		closers:  []func() error{db.Close},
	}

	if opts.RedisURL != "" {
		quota, closeRedis, err := NewRedisQuotaRepo(ctx, opts.RedisURL)
		if err != nil {
			db.Close()
			return nil, err
		}
		repos.Quota = quota
		repos.closers = append(repos.closers, closeRedis)
		log.Info().Msg("daily quota counters in redis")
	}
	return repos, nil
}

// Stores exposes the repositories to the usecase layer
func (r *Repositories) Stores() biz.Stores {
	return biz.Stores{
		Rules:      r.Rules,
		Rooms:      r.Rooms,
		Quota:      r.Quota,
		Cooldown:   r.Cooldown,
		Orders:     r.Orders,
		Stats:      r.Stats,
		Classifier: r.Classifier,
		Delivery:   r.Delivery,
		Profiles:   r.Profiles,
	}
}

// Close releases the database and redis connections
func (r *Repositories) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
