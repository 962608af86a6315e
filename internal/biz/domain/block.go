package domain

import "time"

// BlockEntry marks a user whose messages are rejected before classification
type BlockEntry struct {
	UserID    string
	BlockedBy string
	Reason    string
	CreatedAt time.Time
}
