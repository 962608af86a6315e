package domain

import "time"

// DateLayout is the calendar-date key format used for quotas and stats
const DateLayout = "2006-01-02"

// DateKey returns the calendar date of t in loc
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// StatsDelta is an increment applied to one day's counters
type StatsDelta struct {
	Processed int
	Forwarded int
	Filtered  int
}

// IsZero reports whether the delta changes nothing
func (d StatsDelta) IsZero() bool {
	return d.Processed == 0 && d.Forwarded == 0 && d.Filtered == 0
}

// StatsAggregate holds counters for one date, or totals when Date is empty
type StatsAggregate struct {
	Date      string `json:"date,omitempty"`
	Processed int64  `json:"processed"`
	Forwarded int64  `json:"forwarded"`
	Filtered  int64  `json:"filtered"`
}
