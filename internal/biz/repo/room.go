package repo

import (
	"context"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

// RoomRepo stores the room registry
type RoomRepo interface {
	// Registry returns a snapshot of all rooms
	Registry(ctx context.Context) (*domain.RoomRegistry, error)

	// UpsertSource adds a source room or refreshes its title; returns true if newly added
	UpsertSource(ctx context.Context, room *domain.SourceRoom) (bool, error)

	// SetSourceActive flips a source room's active flag
	SetSourceActive(ctx context.Context, roomID string, active bool) error

	// RemoveSource deletes a source room
	RemoveSource(ctx context.Context, roomID string) error

	// AddRoom adds a destination or monitored room
	AddRoom(ctx context.Context, kind domain.RoomKind, roomID string) error

	// RemoveRoom deletes a destination or monitored room
	RemoveRoom(ctx context.Context, kind domain.RoomKind, roomID string) error
}
