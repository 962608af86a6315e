package usecase

import (
	"context"
	"errors"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/metrics"
)

// minClassifiableRunes is the smallest input worth sending to the classifier
const minClassifiableRunes = 5

// ClassifierConfig configures the classifier adapter
type ClassifierConfig struct {
	DefaultPrompt string
	Threshold     float64
	Timeout       time.Duration
}

// ClassifierUsecase wraps the external intent service.
// Classify never fails: every error degrades to a non-order classification.
type ClassifierUsecase struct {
	repo  repo.ClassifierRepo
	cache *RuleCache
	cfg   ClassifierConfig
	log   zerolog.Logger
}

// NewClassifierUsecase creates a classifier adapter
func NewClassifierUsecase(classifier repo.ClassifierRepo, cache *RuleCache, cfg ClassifierConfig, log zerolog.Logger) *ClassifierUsecase {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &ClassifierUsecase{
		repo:  classifier,
		cache: cache,
		cfg:   cfg,
		log:   log.With().Str("component", "classifier").Logger(),
	}
}

// Prompt returns the override prompt if one is set, else the default
func (uc *ClassifierUsecase) Prompt() string {
	if p := uc.cache.PromptOverride(); p != "" {
		return p
	}
	return uc.cfg.DefaultPrompt
}

// Classify labels text with a bounded call to the classifier service
func (uc *ClassifierUsecase) Classify(ctx context.Context, text string) domain.Classification {
	if nonSpaceRunes(text) < minClassifiableRunes {
		return domain.Classification{Intent: domain.IntentOther, Confidence: 1.0}
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	start := time.Now()
	c := uc.repo.Classify(callCtx, uc.Prompt(), text)
	metrics.ClassifierLatency.Observe(time.Since(start).Seconds())

	if c.Failure == domain.FailureTransport && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		c = domain.Failed(domain.FailureTimeout)
	}
	if c.Failure != domain.FailureNone {
		// normalize whatever the adapter returned alongside the failure
		c = domain.Failed(c.Failure)
		uc.log.Warn().Str("failure", string(c.Failure)).Msg("classification failed")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		c = domain.Failed(domain.FailureInvalidResponse)
		uc.log.Warn().Msg("classifier confidence out of range")
	}

	metrics.ClassifierResults.WithLabelValues(string(c.Intent), string(c.Failure)).Inc()
	return c
}

// Accept reports whether c counts as an order
func (uc *ClassifierUsecase) Accept(c domain.Classification) bool {
	return c.Accepted(uc.cfg.Threshold)
}

func nonSpaceRunes(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
