package usecase

import (
	"context"
	"strings"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

// KeywordUsecase matches messages against the operator keyword rules.
// Exclude rules win over force rules.
type KeywordUsecase struct {
	cache *RuleCache
}

// NewKeywordUsecase creates a keyword engine reading rules from cache
func NewKeywordUsecase(cache *RuleCache) *KeywordUsecase {
	return &KeywordUsecase{cache: cache}
}

// Match checks text, already normalized, for an exclude or force word
func (uc *KeywordUsecase) Match(text string) domain.KeywordMatch {
	for _, word := range uc.cache.Keywords(domain.KeywordExclude) {
		if strings.Contains(text, word) {
			return domain.KeywordMatch{Excluded: true, Word: word}
		}
	}
	for _, word := range uc.cache.Keywords(domain.KeywordForce) {
		if strings.Contains(text, word) {
			return domain.KeywordMatch{Forced: true, Word: word}
		}
	}
	return domain.KeywordMatch{}
}

// Refresh reloads the rules from the store
func (uc *KeywordUsecase) Refresh(ctx context.Context) error {
	return uc.cache.Refresh(ctx)
}

// Invalidate marks the cached rules stale
func (uc *KeywordUsecase) Invalidate() {
	uc.cache.Invalidate()
}
