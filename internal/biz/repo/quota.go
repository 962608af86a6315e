package repo

import (
	"context"
	"time"
)

// QuotaRepo holds the per-user daily order counters
type QuotaRepo interface {
	// Count returns the user's counter for date
	Count(ctx context.Context, userID, date string) (int, error)

	// Reserve atomically increments the counter if it is below max.
	// It returns false without changing anything when the quota is used up.
	Reserve(ctx context.Context, userID, date string, max int) (bool, int, error)

	// Cleanup drops counters of dates before beforeDate
	Cleanup(ctx context.Context, beforeDate string) (int64, error)
}

// CooldownRepo remembers the time of each user's last accepted order
type CooldownRepo interface {
	// Last returns the last accepted order time of userID
	Last(userID string) (time.Time, bool)

	// Touch records an accepted order at t
	Touch(userID string, t time.Time)

	// Sweep evicts entries older than before and returns how many were removed
	Sweep(before time.Time) int

	// Len returns the number of tracked users
	Len() int
}
