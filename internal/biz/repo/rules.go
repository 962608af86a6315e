package repo

import (
	"context"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

// RuleRepo stores keyword rules, the block list and key/value settings
type RuleRepo interface {
	// ListKeywords returns rules of one category, or all rules when category is empty
	ListKeywords(ctx context.Context, category domain.KeywordCategory) ([]*domain.KeywordRule, error)

	// AddKeyword inserts a rule; returns domain.ErrDuplicate if (word, category) exists
	AddKeyword(ctx context.Context, rule *domain.KeywordRule) error

	// RemoveKeyword deletes a rule by id
	RemoveKeyword(ctx context.Context, id int64) error

	// Block adds or replaces a block entry
	Block(ctx context.Context, entry *domain.BlockEntry) error

	// Unblock removes a block entry; returns domain.ErrNotFound if absent
	Unblock(ctx context.Context, userID string) error

	// ListBlocked returns all block entries, newest first
	ListBlocked(ctx context.Context) ([]*domain.BlockEntry, error)

	// GetSetting returns the value of key, or "" when unset
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting stores a value; an empty value deletes the key
	SetSetting(ctx context.Context, key, value string) error
}

// SettingClassifierPrompt is the settings key of the classifier prompt override
const SettingClassifierPrompt = "classifier_prompt"
