package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/metrics"
)

// StatsUsecase records the daily processed/forwarded/filtered counters.
// Store failures are logged, never returned to the pipeline.
type StatsUsecase struct {
	repo repo.StatsRepo
	loc  *time.Location
	now  func() time.Time
	log  zerolog.Logger
}

// NewStatsUsecase creates a stats recorder counting days in loc
func NewStatsUsecase(statsRepo repo.StatsRepo, loc *time.Location, log zerolog.Logger) *StatsUsecase {
	return &StatsUsecase{
		repo: statsRepo,
		loc:  loc,
		now:  time.Now,
		log:  log.With().Str("component", "stats").Logger(),
	}
}

// Processed counts a message from a watched room
func (uc *StatsUsecase) Processed(ctx context.Context) {
	metrics.MessagesProcessed.Inc()
	uc.add(ctx, domain.StatsDelta{Processed: 1})
}

// Filtered counts a message rejected for reason
func (uc *StatsUsecase) Filtered(ctx context.Context, reason domain.Reason) {
	metrics.MessagesFiltered.WithLabelValues(string(reason)).Inc()
	uc.add(ctx, domain.StatsDelta{Filtered: 1})
}

// Forwarded counts an order delivered to at least one destination
func (uc *StatsUsecase) Forwarded(ctx context.Context) {
	metrics.OrdersForwarded.Inc()
	uc.add(ctx, domain.StatsDelta{Forwarded: 1})
}

func (uc *StatsUsecase) add(ctx context.Context, delta domain.StatsDelta) {
	if err := uc.repo.AddStats(ctx, uc.today(), delta); err != nil {
		uc.log.Error().Err(err).Msg("update stats failed")
	}
}

func (uc *StatsUsecase) today() string {
	return domain.DateKey(uc.now(), uc.loc)
}

// Today returns today's counters
func (uc *StatsUsecase) Today(ctx context.Context) (*domain.StatsAggregate, error) {
	return uc.repo.StatsFor(ctx, uc.today())
}

// Total returns counters summed over all days
func (uc *StatsUsecase) Total(ctx context.Context) (*domain.StatsAggregate, error) {
	return uc.repo.TotalStats(ctx)
}
