package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/biz/usecase"
)

// MaintenanceConfig configures the maintenance loops
type MaintenanceConfig struct {
	RefreshInterval time.Duration // rule cache refresh
	SweepInterval   time.Duration // cool-down eviction
	CleanupInterval time.Duration // order and quota retention
	OrderRetention  time.Duration
	QuotaRetention  time.Duration
	Location        *time.Location
}

// DefaultMaintenanceConfig returns the production intervals
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		RefreshInterval: 30 * time.Second,
		SweepInterval:   time.Minute,
		CleanupInterval: 6 * time.Hour,
		OrderRetention:  90 * 24 * time.Hour,
		QuotaRetention:  7 * 24 * time.Hour,
		Location:        time.Local,
	}
}

// Maintenance runs the periodic housekeeping of the relay
type Maintenance struct {
	cache  *usecase.RuleCache
	guard  *usecase.GuardUsecase
	orders repo.OrderRepo
	quota  repo.QuotaRepo
	cfg    MaintenanceConfig
	log    zerolog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMaintenance creates the maintenance loops
func NewMaintenance(
	cache *usecase.RuleCache,
	guard *usecase.GuardUsecase,
	orders repo.OrderRepo,
	quota repo.QuotaRepo,
	cfg MaintenanceConfig,
	log zerolog.Logger,
) *Maintenance {
	def := DefaultMaintenanceConfig()
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.QuotaRetention <= 0 {
		cfg.QuotaRetention = def.QuotaRetention
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &Maintenance{
		cache:  cache,
		guard:  guard,
		orders: orders,
		quota:  quota,
		cfg:    cfg,
		log:    log.With().Str("component", "maintenance").Logger(),
		now:    time.Now,
	}
}

// Start starts the loops; the cleanup runs once right away
func (m *Maintenance) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(3)
	go m.every(m.cfg.RefreshInterval, m.Refresh)
	go m.every(m.cfg.SweepInterval, m.Sweep)
	go func() {
		m.Cleanup()
		m.every(m.cfg.CleanupInterval, m.Cleanup)
	}()

	m.log.Info().
		Dur("refresh", m.cfg.RefreshInterval).
		Dur("sweep", m.cfg.SweepInterval).
		Dur("cleanup", m.cfg.CleanupInterval).
		Msg("maintenance started")
}

// Stop stops the loops
func (m *Maintenance) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Maintenance) every(interval time.Duration, task func()) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			task()
		}
	}
}

// Refresh reloads the rule cache when it is stale or was invalidated
func (m *Maintenance) Refresh() {
	ctx, cancel := context.WithTimeout(m.context(), 10*time.Second)
	defer cancel()

	refreshed, err := m.cache.RefreshIfStale(ctx, m.cfg.RefreshInterval)
	if err != nil {
		m.log.Error().Err(err).Msg("rule cache refresh failed")
		return
	}
	if refreshed {
		m.log.Debug().Msg("rule cache refreshed")
	}
}

// Sweep evicts expired cool-down entries
func (m *Maintenance) Sweep() {
	if n := m.guard.Sweep(); n > 0 {
		m.log.Debug().Int("evicted", n).Msg("cool-down entries evicted")
	}
}

// Cleanup deletes audit records and quota counters past retention
func (m *Maintenance) Cleanup() {
	ctx, cancel := context.WithTimeout(m.context(), time.Minute)
	defer cancel()
	now := m.now()

	if m.cfg.OrderRetention > 0 {
		n, err := m.orders.CleanupOrders(ctx, now.Add(-m.cfg.OrderRetention))
		if err != nil {
			m.log.Error().Err(err).Msg("order cleanup failed")
		} else if n > 0 {
			m.log.Info().Int64("deleted", n).Msg("old orders deleted")
		}
	}

	before := domain.DateKey(now.Add(-m.cfg.QuotaRetention), m.cfg.Location)
	n, err := m.quota.Cleanup(ctx, before)
	if err != nil {
		m.log.Error().Err(err).Msg("quota cleanup failed")
	} else if n > 0 {
		m.log.Info().Int64("deleted", n).Msg("old quota counters deleted")
	}
}

func (m *Maintenance) context() context.Context {
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}
