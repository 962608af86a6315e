package usecase

import (
	"regexp"
	"strings"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

// Uzbek mobile formats, most specific first
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+998\s*\d{2}\s*\d{3}\s*\d{2}\s*\d{2}`),
	regexp.MustCompile(`\+998\d{9}`),
	regexp.MustCompile(`998\d{9}`),
	regexp.MustCompile(`\b9[0-9]\s*\d{3}\s*\d{2}\s*\d{2}\b`),
	regexp.MustCompile(`\b9[0-9]\d{7}\b`),
}

// ExtractPhone finds the first phone number in text and normalizes it
// to +998XXXXXXXXX. It returns "" when nothing matches.
func ExtractPhone(text string) string {
	for _, re := range phonePatterns {
		if m := re.FindString(text); m != "" {
			return NormalizePhone(m)
		}
	}
	return ""
}

// NormalizePhone keeps digits and a leading plus and adds the country
// code to bare 9-digit local numbers
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' || r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	p := b.String()
	if p == "" || p == "+" {
		return ""
	}
	if strings.HasPrefix(p, "+") {
		return p
	}
	switch {
	case strings.HasPrefix(p, "998"):
		return "+" + p
	case len(p) == 9:
		return "+998" + p
	}
	return "+" + p
}

// DialDigits returns the phone without the leading plus
func DialDigits(phone string) string {
	return strings.TrimPrefix(phone, "+")
}

// ResolvePhone picks the phone for a notice: the classifier's extraction,
// then a regex match on the raw text, then the sender's profile phone.
// Values are only ever taken from those sources.
func ResolvePhone(fields *domain.OrderFields, text string, sender domain.Member) (string, domain.PhoneSource) {
	if fields != nil {
		if p := NormalizePhone(fields.Phone); p != "" {
			return p, domain.PhoneExtracted
		}
	}
	if p := ExtractPhone(text); p != "" {
		return p, domain.PhoneRegex
	}
	if p := NormalizePhone(sender.ProfilePhone); p != "" {
		return p, domain.PhoneProfile
	}
	return "", domain.PhoneNone
}
