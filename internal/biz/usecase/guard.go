package usecase

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/metrics"
)

// guardStripes is the number of per-user lock stripes
const guardStripes = 64

// GuardConfig holds the abuse-control limits
type GuardConfig struct {
	Cooldown        time.Duration
	MaxOrdersPerDay int
	Location        *time.Location
}

// Admission is the guard's decision on one accepted order
type Admission struct {
	Allowed bool
	Reason  domain.Reason // set when not allowed
	Count   int           // today's counter after the reservation, -1 if unknown
}

// GuardUsecase enforces the cool-down window and the daily quota.
// Everything for one user runs under that user's lock stripe, so the
// cool-down check, the quota reservation and the cool-down update are
// one atomic step per user.
type GuardUsecase struct {
	cooldown repo.CooldownRepo
	quota    repo.QuotaRepo
	cfg      GuardConfig
	now      func() time.Time
	log      zerolog.Logger

	locks [guardStripes]sync.Mutex
}

// NewGuardUsecase creates an abuse guard
func NewGuardUsecase(cooldown repo.CooldownRepo, quota repo.QuotaRepo, cfg GuardConfig, log zerolog.Logger) *GuardUsecase {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &GuardUsecase{
		cooldown: cooldown,
		quota:    quota,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("component", "guard").Logger(),
	}
}

func (uc *GuardUsecase) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &uc.locks[h.Sum32()%guardStripes]
}

// Admit decides whether userID may place another order now.
// A suppressed order leaves both the cool-down and the quota untouched.
func (uc *GuardUsecase) Admit(ctx context.Context, userID string) Admission {
	if userID == "" {
		return Admission{Allowed: true, Count: -1}
	}

	mu := uc.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	now := uc.now()
	if last, ok := uc.cooldown.Last(userID); ok && now.Sub(last) < uc.cfg.Cooldown {
		return Admission{Reason: domain.ReasonCooldown, Count: -1}
	}

	count := -1
	if uc.cfg.MaxOrdersPerDay > 0 {
		date := domain.DateKey(now, uc.cfg.Location)
		reserved, n, err := uc.quota.Reserve(ctx, userID, date, uc.cfg.MaxOrdersPerDay)
		switch {
		case err != nil:
			// store outage: let the order through rather than drop it
			uc.log.Error().Err(err).Str("user_id", userID).Msg("quota reservation failed")
		case !reserved:
			return Admission{Reason: domain.ReasonQuota, Count: n}
		default:
			count = n
		}
	}

	uc.cooldown.Touch(userID, now)
	return Admission{Allowed: true, Count: count}
}

// Sweep drops cool-down entries that can no longer suppress anything
func (uc *GuardUsecase) Sweep() int {
	removed := uc.cooldown.Sweep(uc.now().Add(-uc.cfg.Cooldown))
	metrics.CooldownEntries.Set(float64(uc.cooldown.Len()))
	return removed
}
