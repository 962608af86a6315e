package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

const (
	// ExcerptLimit is the maximum rune length of the quoted original text
	ExcerptLimit = 100
	// labelLimit bounds button labels built from names and titles
	labelLimit = 25
)

// NoticeConfig holds the fixed parts of a notice
type NoticeConfig struct {
	Header             []string // greeting lines, in order
	DialURLTemplate    string   // %s receives the phone digits
	ProfileURLTemplate string   // %s receives the user id
	BlockLabel         string
}

// DefaultNoticeConfig returns the stock header and link templates
func DefaultNoticeConfig() NoticeConfig {
	return NoticeConfig{
		Header: []string{
			"Asalomu alaykum Hurmatli haydovchilar",
			"Yangi Buyurtma Keldi 😊",
		},
		DialURLTemplate:    "https://onmap.uz/tel/%s",
		ProfileURLTemplate: "https://applink.feishu.cn/client/chat/open?openId=%s",
		BlockLabel:         "🚫 Bloklash",
	}
}

// NoticeInput is everything the formatter reads
type NoticeInput struct {
	Fields    *domain.OrderFields
	Text      string
	Sender    domain.Member
	RoomID    string
	RoomTitle string
	Permalink string
}

// FormattedOrder is a notice plus the phone it carries
type FormattedOrder struct {
	Notice      domain.Notice
	Phone       string
	PhoneSource domain.PhoneSource
}

// FormatNotice renders an order notice. It is a pure function of its
// arguments: the same input always yields the same bytes.
//
// Layout: header lines, blank, sender mention, blank, phone line and
// blank (if any phone), excerpt line.
func FormatNotice(cfg NoticeConfig, in NoticeInput) FormattedOrder {
	phone, source := ResolvePhone(in.Fields, in.Text, in.Sender)

	lines := make([]string, 0, len(cfg.Header)+6)
	lines = append(lines, cfg.Header...)
	lines = append(lines, "")

	if in.Sender.HasID() {
		lines = append(lines, fmt.Sprintf("👤 <at id=%s></at>", in.Sender.UserID))
	} else {
		lines = append(lines, "👤 "+escapeMarkdown(in.Sender.DisplayName()))
	}
	lines = append(lines, "")

	if phone != "" {
		lines = append(lines, "📞 "+phone, "")
	}

	if excerpt := strings.TrimSpace(in.Text); excerpt != "" {
		excerpt = escapeMarkdown(Truncate(excerpt, ExcerptLimit))
		if in.Permalink != "" {
			lines = append(lines, fmt.Sprintf("💬 [%s](%s)", excerpt, in.Permalink))
		} else {
			lines = append(lines, "💬 "+excerpt)
		}
	}

	return FormattedOrder{
		Notice: domain.Notice{
			Text:     strings.Join(lines, "\n"),
			Controls: buildControls(cfg, in, phone),
		},
		Phone:       phone,
		PhoneSource: source,
	}
}

func buildControls(cfg NoticeConfig, in NoticeInput, phone string) []domain.Control {
	var controls []domain.Control

	if in.Sender.HasID() && cfg.ProfileURLTemplate != "" {
		controls = append(controls, domain.Control{
			Kind:  domain.ControlProfile,
			Label: "👤 " + Truncate(in.Sender.DisplayName(), labelLimit),
			URL:   fmt.Sprintf(cfg.ProfileURLTemplate, in.Sender.UserID),
		})
	}
	if phone != "" && cfg.DialURLTemplate != "" {
		controls = append(controls, domain.Control{
			Kind:  domain.ControlDial,
			Label: "📞 " + phone,
			URL:   fmt.Sprintf(cfg.DialURLTemplate, DialDigits(phone)),
		})
	}
	if in.Permalink != "" {
		title := in.RoomTitle
		if title == "" {
			title = in.RoomID
		}
		controls = append(controls, domain.Control{
			Kind:  domain.ControlOriginal,
			Label: "📨 " + Truncate(title, labelLimit),
			URL:   in.Permalink,
		})
	}
	if in.Sender.HasID() {
		label := cfg.BlockLabel
		if label == "" {
			label = "🚫 Block"
		}
		controls = append(controls, domain.Control{
			Kind:  domain.ControlBlock,
			Label: label,
			Value: map[string]string{
				"action":  domain.BlockAction,
				"user_id": in.Sender.UserID,
			},
		})
	}
	return controls
}

// Truncate shortens s to at most limit runes, ending in "..." when cut
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}

var markdownEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"[", "［",
	"]", "］",
)

// escapeMarkdown neutralizes characters that would turn user text into
// card markup. Brackets become full-width so they cannot close a link.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
