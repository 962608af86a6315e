package domain

import "time"

// OrderRecord is the audit entry written once per accepted message
type OrderRecord struct {
	ID        string
	UserID    string
	UserName  string
	Phone     string // empty when no phone was resolved
	Text      string
	RoomID    string
	RoomTitle string
	Intent    Intent
	Delivered int // destinations that accepted the notice
	CreatedAt time.Time
}

// PhoneSource records where a resolved phone came from
type PhoneSource string

const (
	PhoneNone      PhoneSource = ""
	PhoneExtracted PhoneSource = "extracted"
	PhoneRegex     PhoneSource = "regex"
	PhoneProfile   PhoneSource = "profile"
)
