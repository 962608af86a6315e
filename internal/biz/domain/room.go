package domain

import (
	"strings"
	"time"
)

// RoomKind is the role a room plays in the registry
type RoomKind string

const (
	RoomSource      RoomKind = "source"
	RoomDestination RoomKind = "destination"
	RoomMonitored   RoomKind = "monitored"
)

// SourceRoom is a watched chat
type SourceRoom struct {
	RoomID  string
	Title   string
	Active  bool
	AddedBy string
	AddedAt time.Time
}

// RoomRegistry is a snapshot of all configured rooms
type RoomRegistry struct {
	Sources      []SourceRoom
	Destinations []string
	Monitored    []string
}

// IsWatched reports whether messages from roomID enter the pipeline
func (r *RoomRegistry) IsWatched(roomID string) bool {
	for _, s := range r.Sources {
		if s.RoomID == roomID && s.Active {
			return true
		}
	}
	for _, id := range r.Monitored {
		if id == roomID {
			return true
		}
	}
	return false
}

// IsDestination reports whether roomID receives notices
func (r *RoomRegistry) IsDestination(roomID string) bool {
	for _, id := range r.Destinations {
		if id == roomID {
			return true
		}
	}
	return false
}

// IsSource reports whether roomID is a source or monitored room, active or not
func (r *RoomRegistry) IsSource(roomID string) bool {
	for _, s := range r.Sources {
		if s.RoomID == roomID {
			return true
		}
	}
	for _, id := range r.Monitored {
		if id == roomID {
			return true
		}
	}
	return false
}

// Title returns the stored title of a source room
func (r *RoomRegistry) Title(roomID string) string {
	for _, s := range r.Sources {
		if s.RoomID == roomID {
			return s.Title
		}
	}
	return ""
}

// ValidRoomID reports whether id looks like a Feishu chat id
func ValidRoomID(id string) bool {
	if !strings.HasPrefix(id, "oc_") || len(id) <= len("oc_") {
		return false
	}
	for _, c := range id[3:] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			return false
		}
	}
	return true
}
