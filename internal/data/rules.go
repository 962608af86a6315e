package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// ruleRepo implements the rule repository on SQLite
type ruleRepo struct {
	db *sql.DB
}

// NewRuleRepo creates a rule repository
func NewRuleRepo(db *sql.DB) repo.RuleRepo {
	return &ruleRepo{db: db}
}

// ListKeywords lists keyword rules, optionally of one category
func (r *ruleRepo) ListKeywords(ctx context.Context, category domain.KeywordCategory) ([]*domain.KeywordRule, error) {
	query := `SELECT id, word, category, owner_id, created_at FROM keywords`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var rules []*domain.KeywordRule
	for rows.Next() {
		var rule domain.KeywordRule
		var cat string
		var createdAt int64
		if err := rows.Scan(&rule.ID, &rule.Word, &cat, &rule.OwnerID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		rule.Category = domain.KeywordCategory(cat)
		rule.CreatedAt = time.Unix(createdAt, 0)
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// AddKeyword inserts a rule, reporting ErrDuplicate for an existing (word, category)
func (r *ruleRepo) AddKeyword(ctx context.Context, rule *domain.KeywordRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO keywords (word, category, owner_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (word, category) DO NOTHING
	`, rule.Word, string(rule.Category), rule.OwnerID, rule.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to add keyword: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrDuplicate
	}
	rule.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read keyword id: %w", err)
	}
	return nil
}

// RemoveKeyword deletes a rule
func (r *ruleRepo) RemoveKeyword(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "remove keyword", `DELETE FROM keywords WHERE id = ?`, id)
}

// Block adds or replaces a block entry
func (r *ruleRepo) Block(ctx context.Context, entry *domain.BlockEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO blocked_users (user_id, blocked_by, reason, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.UserID, entry.BlockedBy, entry.Reason, entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	return nil
}

// Unblock removes a block entry
func (r *ruleRepo) Unblock(ctx context.Context, userID string) error {
	return execOne(ctx, r.db, "unblock user", `DELETE FROM blocked_users WHERE user_id = ?`, userID)
}

// ListBlocked lists the block list, newest first
func (r *ruleRepo) ListBlocked(ctx context.Context) ([]*domain.BlockEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, blocked_by, reason, created_at
		FROM blocked_users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked users: %w", err)
	}
	defer rows.Close()

	var entries []*domain.BlockEntry
	for rows.Next() {
		var e domain.BlockEntry
		var createdAt int64
		if err := rows.Scan(&e.UserID, &e.BlockedBy, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan blocked user: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// GetSetting reads a setting, "" when unset
func (r *ruleRepo) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// SetSetting writes a setting; an empty value deletes it
func (r *ruleRepo) SetSetting(ctx context.Context, key, value string) error {
	var err error
	if value == "" {
		_, err = r.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	} else {
		_, err = r.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		`, key, value, time.Now().Unix())
	}
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// execOne runs a statement that must affect a row, else ErrNotFound
func execOne(ctx context.Context, db *sql.DB, what, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
