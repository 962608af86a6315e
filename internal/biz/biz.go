package biz

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/biz/usecase"
)

// Stores are the collaborators the usecases run against. Classifier,
// Delivery and Profiles may be nil for store-only processes.
type Stores struct {
	Rules      repo.RuleRepo
	Rooms      repo.RoomRepo
	Quota      repo.QuotaRepo
	Cooldown   repo.CooldownRepo
	Orders     repo.OrderRepo
	Stats      repo.StatsRepo
	Classifier repo.ClassifierRepo
	Delivery   repo.DeliveryRepo
	Profiles   repo.ProfileRepo
}

// Config groups the usecase configurations
type Config struct {
	Prefilter   usecase.PrefilterConfig
	Guard       usecase.GuardConfig
	Classifier  usecase.ClassifierConfig
	Pipeline    usecase.PipelineConfig
	SendTimeout time.Duration
	Location    *time.Location
}

// Usecases contains all usecases
type Usecases struct {
	Cache      *usecase.RuleCache
	Stats      *usecase.StatsUsecase
	Classifier *usecase.ClassifierUsecase
	Guard      *usecase.GuardUsecase
	Pipeline   *usecase.Pipeline
	Admin      *usecase.AdminUsecase
}

// NewUsecases wires the usecase layer
func NewUsecases(s Stores, cfg Config, log zerolog.Logger) *Usecases {
	cache := usecase.NewRuleCache(s.Rules, s.Rooms)
	stats := usecase.NewStatsUsecase(s.Stats, cfg.Location, log)
	classifier := usecase.NewClassifierUsecase(s.Classifier, cache, cfg.Classifier, log)
	guard := usecase.NewGuardUsecase(s.Cooldown, s.Quota, cfg.Guard, log)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Cache:      cache,
		Prefilter:  usecase.NewPrefilterUsecase(cache, s.Quota, cfg.Prefilter, log),
		Keywords:   usecase.NewKeywordUsecase(cache),
		Classifier: classifier,
		Guard:      guard,
		Delivery:   usecase.NewDeliveryUsecase(s.Delivery, cfg.SendTimeout, log),
		Stats:      stats,
		Orders:     s.Orders,
		Profiles:   s.Profiles,
	}, cfg.Pipeline, log)

	return &Usecases{
		Cache:      cache,
		Stats:      stats,
		Classifier: classifier,
		Guard:      guard,
		Pipeline:   pipeline,
		Admin:      usecase.NewAdminUsecase(s.Rules, s.Rooms, s.Orders, stats, cache, classifier, log),
	}
}
