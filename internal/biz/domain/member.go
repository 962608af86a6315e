package domain

import "strings"

// Member is the sender identity of a message (value object)
type Member struct {
	UserID       string
	Name         string
	ProfilePhone string // phone from the user's profile, if visible
}

// DisplayName returns the name shown in notices
func (m Member) DisplayName() string {
	if name := strings.TrimSpace(m.Name); name != "" {
		return name
	}
	return "Foydalanuvchi"
}

// HasID reports whether the member can be addressed by id
func (m Member) HasID() bool {
	return m.UserID != ""
}

// ValidUserID reports whether id looks like a Feishu open_id
func ValidUserID(id string) bool {
	if !strings.HasPrefix(id, "ou_") || len(id) <= len("ou_") {
		return false
	}
	for _, c := range id[3:] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			return false
		}
	}
	return true
}
