package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// AdminUsecase is the operator surface over the rule store.
// Input is validated here so malformed values never reach the pipeline,
// and every write refreshes the pipeline's rule cache.
type AdminUsecase struct {
	rules      repo.RuleRepo
	rooms      repo.RoomRepo
	orders     repo.OrderRepo
	stats      *StatsUsecase
	cache      *RuleCache
	classifier *ClassifierUsecase
	now        func() time.Time
	log        zerolog.Logger
}

// NewAdminUsecase creates the admin usecase
func NewAdminUsecase(
	rules repo.RuleRepo,
	rooms repo.RoomRepo,
	orders repo.OrderRepo,
	stats *StatsUsecase,
	cache *RuleCache,
	classifier *ClassifierUsecase,
	log zerolog.Logger,
) *AdminUsecase {
	return &AdminUsecase{
		rules:      rules,
		rooms:      rooms,
		orders:     orders,
		stats:      stats,
		cache:      cache,
		classifier: classifier,
		now:        time.Now,
		log:        log.With().Str("component", "admin").Logger(),
	}
}

func (uc *AdminUsecase) changed(ctx context.Context) {
	if err := uc.cache.Refresh(ctx); err != nil {
		uc.log.Error().Err(err).Msg("rule cache refresh failed")
		uc.cache.Invalidate()
	}
}

// ---- keywords ----

// ListKeywords returns rules of category, or all when category is empty
func (uc *AdminUsecase) ListKeywords(ctx context.Context, category domain.KeywordCategory) ([]*domain.KeywordRule, error) {
	if category != "" && !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidKeyword, category)
	}
	return uc.rules.ListKeywords(ctx, category)
}

// AddKeyword stores a normalized keyword rule
func (uc *AdminUsecase) AddKeyword(ctx context.Context, word string, category domain.KeywordCategory, owner string) (*domain.KeywordRule, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidKeyword, category)
	}
	word = domain.NormalizeKeyword(word)
	if word == "" {
		return nil, fmt.Errorf("%w: empty word", domain.ErrInvalidKeyword)
	}

	rule := &domain.KeywordRule{
		Word:      word,
		Category:  category,
		OwnerID:   owner,
		CreatedAt: uc.now(),
	}
	if err := uc.rules.AddKeyword(ctx, rule); err != nil {
		return nil, err
	}
	uc.changed(ctx)
	uc.log.Info().Str("word", word).Str("category", string(category)).Msg("keyword added")
	return rule, nil
}

// RemoveKeyword deletes a keyword rule by id
func (uc *AdminUsecase) RemoveKeyword(ctx context.Context, id int64) error {
	if err := uc.rules.RemoveKeyword(ctx, id); err != nil {
		return err
	}
	uc.changed(ctx)
	return nil
}

// ---- block list ----

// Block adds userID to the block list
func (uc *AdminUsecase) Block(ctx context.Context, userID, by, reason string) error {
	userID = strings.TrimSpace(userID)
	if !domain.ValidUserID(userID) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidUserID, userID)
	}
	entry := &domain.BlockEntry{
		UserID:    userID,
		BlockedBy: by,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: uc.now(),
	}
	if err := uc.rules.Block(ctx, entry); err != nil {
		return err
	}
	uc.changed(ctx)
	uc.log.Info().Str("user_id", userID).Str("blocked_by", by).Msg("user blocked")
	return nil
}

// Unblock removes userID from the block list
func (uc *AdminUsecase) Unblock(ctx context.Context, userID string) error {
	if err := uc.rules.Unblock(ctx, strings.TrimSpace(userID)); err != nil {
		return err
	}
	uc.changed(ctx)
	return nil
}

// ListBlocked returns the block list
func (uc *AdminUsecase) ListBlocked(ctx context.Context) ([]*domain.BlockEntry, error) {
	return uc.rules.ListBlocked(ctx)
}

// ---- rooms ----

// Rooms returns the stored room registry
func (uc *AdminUsecase) Rooms(ctx context.Context) (*domain.RoomRegistry, error) {
	return uc.rooms.Registry(ctx)
}

func (uc *AdminUsecase) registry(ctx context.Context, roomID string) (*domain.RoomRegistry, error) {
	if !domain.ValidRoomID(roomID) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRoomID, roomID)
	}
	return uc.rooms.Registry(ctx)
}

// AddSource registers a watched room; returns true when it was new
func (uc *AdminUsecase) AddSource(ctx context.Context, roomID, title, by string) (bool, error) {
	reg, err := uc.registry(ctx, roomID)
	if err != nil {
		return false, err
	}
	if reg.IsDestination(roomID) {
		return false, domain.ErrRoomConflict
	}
	added, err := uc.rooms.UpsertSource(ctx, &domain.SourceRoom{
		RoomID:  roomID,
		Title:   strings.TrimSpace(title),
		Active:  true,
		AddedBy: by,
		AddedAt: uc.now(),
	})
	if err != nil {
		return false, err
	}
	uc.changed(ctx)
	return added, nil
}

// ToggleSource flips a source room between active and paused
func (uc *AdminUsecase) ToggleSource(ctx context.Context, roomID string) (bool, error) {
	reg, err := uc.registry(ctx, roomID)
	if err != nil {
		return false, err
	}
	for _, s := range reg.Sources {
		if s.RoomID != roomID {
			continue
		}
		if err := uc.rooms.SetSourceActive(ctx, roomID, !s.Active); err != nil {
			return false, err
		}
		uc.changed(ctx)
		return !s.Active, nil
	}
	return false, domain.ErrNotFound
}

// RemoveSource unregisters a watched room
func (uc *AdminUsecase) RemoveSource(ctx context.Context, roomID string) error {
	if err := uc.rooms.RemoveSource(ctx, roomID); err != nil {
		return err
	}
	uc.changed(ctx)
	return nil
}

// AddDestination registers a room that receives notices
func (uc *AdminUsecase) AddDestination(ctx context.Context, roomID string) error {
	reg, err := uc.registry(ctx, roomID)
	if err != nil {
		return err
	}
	if reg.IsSource(roomID) {
		return domain.ErrRoomConflict
	}
	return uc.addRoom(ctx, domain.RoomDestination, roomID)
}

// AddMonitored registers a supplementary watched room
func (uc *AdminUsecase) AddMonitored(ctx context.Context, roomID string) error {
	reg, err := uc.registry(ctx, roomID)
	if err != nil {
		return err
	}
	if reg.IsDestination(roomID) {
		return domain.ErrRoomConflict
	}
	return uc.addRoom(ctx, domain.RoomMonitored, roomID)
}

func (uc *AdminUsecase) addRoom(ctx context.Context, kind domain.RoomKind, roomID string) error {
	if err := uc.rooms.AddRoom(ctx, kind, roomID); err != nil {
		return err
	}
	uc.changed(ctx)
	uc.log.Info().Str("room_id", roomID).Str("kind", string(kind)).Msg("room added")
	return nil
}

// RemoveRoom unregisters a destination or monitored room
func (uc *AdminUsecase) RemoveRoom(ctx context.Context, kind domain.RoomKind, roomID string) error {
	var err error
	if kind == domain.RoomSource {
		err = uc.rooms.RemoveSource(ctx, roomID)
	} else {
		err = uc.rooms.RemoveRoom(ctx, kind, roomID)
	}
	if err != nil {
		return err
	}
	uc.changed(ctx)
	return nil
}

// ---- classifier prompt ----

// Prompt returns the active classifier prompt and whether it is an override
func (uc *AdminUsecase) Prompt(ctx context.Context) (string, bool, error) {
	override, err := uc.rules.GetSetting(ctx, repo.SettingClassifierPrompt)
	if err != nil {
		return "", false, err
	}
	if override != "" {
		return override, true, nil
	}
	return uc.classifier.cfg.DefaultPrompt, false, nil
}

// SetPrompt stores a classifier prompt override
func (uc *AdminUsecase) SetPrompt(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return domain.ErrInvalidPrompt
	}
	if err := uc.rules.SetSetting(ctx, repo.SettingClassifierPrompt, prompt); err != nil {
		return err
	}
	uc.changed(ctx)
	return nil
}

// ResetPrompt removes the override so the default prompt applies
func (uc *AdminUsecase) ResetPrompt(ctx context.Context) error {
	if err := uc.rules.SetSetting(ctx, repo.SettingClassifierPrompt, ""); err != nil {
		return err
	}
	uc.changed(ctx)
	return nil
}

// ---- stats & orders ----

// Stats returns today's counters and the all-time totals
func (uc *AdminUsecase) Stats(ctx context.Context) (today, total *domain.StatsAggregate, err error) {
	if today, err = uc.stats.Today(ctx); err != nil {
		return nil, nil, err
	}
	if total, err = uc.stats.Total(ctx); err != nil {
		return nil, nil, err
	}
	return today, total, nil
}

// RecentOrders returns up to limit audit records, newest first
func (uc *AdminUsecase) RecentOrders(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return uc.orders.RecentOrders(ctx, limit)
}
