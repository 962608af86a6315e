package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MessageEvent is one inbound chat message, built once at ingestion
type MessageEvent struct {
	MessageID string
	RoomID    string
	RoomTitle string
	Sender    Member
	Text      string
	HasMedia  bool   // image, file, sticker, audio or video attached
	Permalink string // link back to the source message, empty if unknown
	Timestamp time.Time
}

// TrimmedText returns the text without surrounding whitespace
func (m *MessageEvent) TrimmedText() string {
	return strings.TrimSpace(m.Text)
}

// TextLength returns the rune count of the trimmed text
func (m *MessageEvent) TextLength() int {
	return utf8.RuneCountInString(m.TrimmedText())
}

// IsMediaOnly reports whether the message carries media but no text
func (m *MessageEvent) IsMediaOnly() bool {
	return m.HasMedia && m.TrimmedText() == ""
}

// NormalizedText returns the lower-cased text used for keyword matching
func (m *MessageEvent) NormalizedText() string {
	return strings.ToLower(m.TrimmedText())
}
