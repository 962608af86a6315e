package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// ruleSnapshot is an immutable copy of the read-mostly pipeline rules
type ruleSnapshot struct {
	exclude  []string
	force    []string
	blocked  map[string]struct{}
	rooms    *domain.RoomRegistry
	prompt   string
	loadedAt time.Time
}

// RuleCache keeps keyword rules, the block list, the room registry and the
// prompt override in memory. Readers see the last successful load.
type RuleCache struct {
	rules repo.RuleRepo
	rooms repo.RoomRepo

	mu    sync.RWMutex
	snap  *ruleSnapshot
	stale atomic.Bool
}

// NewRuleCache creates an empty cache; call Refresh before use
func NewRuleCache(rules repo.RuleRepo, rooms repo.RoomRepo) *RuleCache {
	return &RuleCache{
		rules: rules,
		rooms: rooms,
		snap: &ruleSnapshot{
			blocked: map[string]struct{}{},
			rooms:   &domain.RoomRegistry{},
		},
	}
}

// Refresh reloads everything from the store.
// On failure the previous snapshot stays in place.
func (c *RuleCache) Refresh(ctx context.Context) error {
	keywords, err := c.rules.ListKeywords(ctx, "")
	if err != nil {
		return fmt.Errorf("load keywords: %w", err)
	}
	blocked, err := c.rules.ListBlocked(ctx)
	if err != nil {
		return fmt.Errorf("load block list: %w", err)
	}
	registry, err := c.rooms.Registry(ctx)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}
	prompt, err := c.rules.GetSetting(ctx, repo.SettingClassifierPrompt)
	if err != nil {
		return fmt.Errorf("load prompt override: %w", err)
	}

	snap := &ruleSnapshot{
		blocked:  make(map[string]struct{}, len(blocked)),
		rooms:    registry,
		prompt:   prompt,
		loadedAt: time.Now(),
	}
	for _, kw := range keywords {
		word := domain.NormalizeKeyword(kw.Word)
		if word == "" {
			continue
		}
		switch kw.Category {
		case domain.KeywordExclude:
			snap.exclude = append(snap.exclude, word)
		case domain.KeywordForce:
			snap.force = append(snap.force, word)
		}
	}
	for _, b := range blocked {
		snap.blocked[b.UserID] = struct{}{}
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	c.stale.Store(false)
	return nil
}

// Invalidate marks the snapshot stale so the next RefreshIfStale reloads it
func (c *RuleCache) Invalidate() {
	c.stale.Store(true)
}

// RefreshIfStale reloads when invalidated or when the snapshot is older than maxAge
func (c *RuleCache) RefreshIfStale(ctx context.Context, maxAge time.Duration) (bool, error) {
	if !c.stale.Load() && time.Since(c.LoadedAt()) < maxAge {
		return false, nil
	}
	return true, c.Refresh(ctx)
}

func (c *RuleCache) current() *ruleSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Keywords returns the normalized words of one category
func (c *RuleCache) Keywords(category domain.KeywordCategory) []string {
	snap := c.current()
	if category == domain.KeywordExclude {
		return snap.exclude
	}
	return snap.force
}

// IsBlocked reports whether userID is on the block list
func (c *RuleCache) IsBlocked(userID string) bool {
	_, ok := c.current().blocked[userID]
	return ok
}

// Rooms returns the cached room registry
func (c *RuleCache) Rooms() *domain.RoomRegistry {
	return c.current().rooms
}

// PromptOverride returns the operator's classifier prompt, or ""
func (c *RuleCache) PromptOverride() string {
	return c.current().prompt
}

// LoadedAt returns when the snapshot was loaded
func (c *RuleCache) LoadedAt() time.Time {
	return c.current().loadedAt
}
