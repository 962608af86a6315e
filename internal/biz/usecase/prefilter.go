package usecase

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// PrefilterConfig holds the cheap-rejection thresholds
type PrefilterConfig struct {
	MinLength       int // runes, inclusive
	MaxLength       int // runes, inclusive
	MinContentRunes int // runes left after removing emoji and whitespace
	MaxOrdersPerDay int
	Location        *time.Location
}

// DefaultPrefilterConfig returns the production thresholds
func DefaultPrefilterConfig() PrefilterConfig {
	return PrefilterConfig{
		MinLength:       10,
		MaxLength:       60,
		MinContentRunes: 5,
		MaxOrdersPerDay: 3,
		Location:        time.Local,
	}
}

// Verdict is what the pipeline does with a pre-filtered message
type Verdict int

const (
	// VerdictIgnore drops the message without counting it
	VerdictIgnore Verdict = iota
	// VerdictReject drops the message and counts it as filtered
	VerdictReject
	// VerdictContinue passes the message to the keyword engine
	VerdictContinue
)

// PrefilterResult is the pre-filter decision for one message
type PrefilterResult struct {
	Verdict Verdict
	Reason  domain.Reason
	Watched bool // the room is watched; the message counts as processed
}

// PrefilterUsecase rejects messages that cannot be orders before any
// external call is made. Checks run in a fixed order; the first one wins.
type PrefilterUsecase struct {
	cache *RuleCache
	quota repo.QuotaRepo
	cfg   PrefilterConfig
	now   func() time.Time
	log   zerolog.Logger
}

// NewPrefilterUsecase creates a pre-filter
func NewPrefilterUsecase(cache *RuleCache, quota repo.QuotaRepo, cfg PrefilterConfig, log zerolog.Logger) *PrefilterUsecase {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &PrefilterUsecase{
		cache: cache,
		quota: quota,
		cfg:   cfg,
		now:   time.Now,
		log:   log.With().Str("component", "prefilter").Logger(),
	}
}

// Check runs the pre-filter on ev
func (uc *PrefilterUsecase) Check(ctx context.Context, ev *domain.MessageEvent) PrefilterResult {
	rooms := uc.cache.Rooms()

	if !rooms.IsWatched(ev.RoomID) {
		return PrefilterResult{Verdict: VerdictIgnore, Reason: domain.ReasonNotWatched}
	}
	if rooms.IsDestination(ev.RoomID) {
		return PrefilterResult{Verdict: VerdictIgnore, Reason: domain.ReasonDestinationRoom}
	}
	if ev.IsMediaOnly() {
		return PrefilterResult{Verdict: VerdictIgnore, Reason: domain.ReasonMediaOnly, Watched: true}
	}

	n := ev.TextLength()
	if n < uc.cfg.MinLength {
		return reject(domain.ReasonTooShort)
	}
	if uc.cfg.MaxLength > 0 && n > uc.cfg.MaxLength {
		return reject(domain.ReasonTooLong)
	}
	if ContentRunes(ev.Text) < uc.cfg.MinContentRunes {
		return reject(domain.ReasonEmojiOnly)
	}

	if !ev.Sender.HasID() {
		return pass()
	}
	if uc.cache.IsBlocked(ev.Sender.UserID) {
		return reject(domain.ReasonBlocked)
	}
	if uc.quotaExhausted(ctx, ev.Sender.UserID) {
		return reject(domain.ReasonQuota)
	}
	return pass()
}

// quotaExhausted is an early read; the guard's reservation is authoritative
func (uc *PrefilterUsecase) quotaExhausted(ctx context.Context, userID string) bool {
	if uc.cfg.MaxOrdersPerDay <= 0 {
		return false
	}
	date := domain.DateKey(uc.now(), uc.cfg.Location)
	count, err := uc.quota.Count(ctx, userID, date)
	if err != nil {
		uc.log.Warn().Err(err).Str("user_id", userID).Msg("quota read failed")
		return false
	}
	return count >= uc.cfg.MaxOrdersPerDay
}

func reject(reason domain.Reason) PrefilterResult {
	return PrefilterResult{Verdict: VerdictReject, Reason: reason, Watched: true}
}

func pass() PrefilterResult {
	return PrefilterResult{Verdict: VerdictContinue, Watched: true}
}

// emojiRanges covers pictographs, symbols, dingbats, flags, variation
// selectors and the zero-width joiner used in emoji sequences
var emojiRanges = [][2]rune{
	{0x200D, 0x200D},
	{0x20E3, 0x20E3},
	{0x2300, 0x23FF},
	{0x25A0, 0x25FF},
	{0x2600, 0x26FF},
	{0x2700, 0x27BF},
	{0x2B00, 0x2BFF},
	{0xFE00, 0xFE0F},
	{0x1F000, 0x1F02F},
	{0x1F0A0, 0x1F0FF},
	{0x1F100, 0x1F1FF},
	{0x1F300, 0x1F5FF},
	{0x1F600, 0x1F64F},
	{0x1F680, 0x1F6FF},
	{0x1F700, 0x1F77F},
	{0x1F900, 0x1F9FF},
	{0x1FA70, 0x1FAFF},
	{0xE0020, 0xE007F},
}

// IsEmoji reports whether r falls in one of the emoji ranges
func IsEmoji(r rune) bool {
	for _, rg := range emojiRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}

// StripEmoji removes emoji and whitespace from text
func StripEmoji(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsSpace(r) || IsEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ContentRunes counts the runes left after StripEmoji
func ContentRunes(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsSpace(r) || IsEmoji(r) {
			continue
		}
		n++
	}
	return n
}
