package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
)

// roomRepo implements the room registry on SQLite
type roomRepo struct {
	db *sql.DB
}

// NewRoomRepo creates a room repository
func NewRoomRepo(db *sql.DB) repo.RoomRepo {
	return &roomRepo{db: db}
}

// Registry loads all rooms
func (r *roomRepo) Registry(ctx context.Context) (*domain.RoomRegistry, error) {
	reg := &domain.RoomRegistry{}

	rows, err := r.db.QueryContext(ctx, `
		SELECT room_id, title, active, added_by, added_at
		FROM source_rooms
		ORDER BY added_at, room_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source rooms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.SourceRoom
		var active int
		var addedAt int64
		if err := rows.Scan(&s.RoomID, &s.Title, &active, &s.AddedBy, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source room: %w", err)
		}
		s.Active = active != 0
		s.AddedAt = time.Unix(addedAt, 0)
		reg.Sources = append(reg.Sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	kindRows, err := r.db.QueryContext(ctx, `SELECT room_id, kind FROM rooms ORDER BY added_at, room_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer kindRows.Close()

	for kindRows.Next() {
		var id, kind string
		if err := kindRows.Scan(&id, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		switch domain.RoomKind(kind) {
		case domain.RoomDestination:
			reg.Destinations = append(reg.Destinations, id)
		case domain.RoomMonitored:
			reg.Monitored = append(reg.Monitored, id)
		}
	}
	return reg, kindRows.Err()
}

// UpsertSource adds a source room or refreshes its title
func (r *roomRepo) UpsertSource(ctx context.Context, room *domain.SourceRoom) (bool, error) {
	if room.AddedAt.IsZero() {
		room.AddedAt = time.Now()
	}
	active := 0
	if room.Active {
		active = 1
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO source_rooms (room_id, title, active, added_by, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (room_id) DO NOTHING
	`, room.RoomID, room.Title, active, room.AddedBy, room.AddedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to add source room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return true, nil
	}

	if room.Title != "" {
		if _, err := r.db.ExecContext(ctx, `
			UPDATE source_rooms SET title = ? WHERE room_id = ?
		`, room.Title, room.RoomID); err != nil {
			return false, fmt.Errorf("failed to update source title: %w", err)
		}
	}
	return false, nil
}

// SetSourceActive flips a source's active flag
func (r *roomRepo) SetSourceActive(ctx context.Context, roomID string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	return execOne(ctx, r.db, "update source room", `UPDATE source_rooms SET active = ? WHERE room_id = ?`, v, roomID)
}

// RemoveSource deletes a source room
func (r *roomRepo) RemoveSource(ctx context.Context, roomID string) error {
	return execOne(ctx, r.db, "remove source room", `DELETE FROM source_rooms WHERE room_id = ?`, roomID)
}

// AddRoom adds a destination or monitored room; adding twice is a no-op
func (r *roomRepo) AddRoom(ctx context.Context, kind domain.RoomKind, roomID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO rooms (room_id, kind, added_at) VALUES (?, ?, ?)
	`, roomID, string(kind), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to add room: %w", err)
	}
	return nil
}

// RemoveRoom deletes a destination or monitored room
func (r *roomRepo) RemoveRoom(ctx context.Context, kind domain.RoomKind, roomID string) error {
	return execOne(ctx, r.db, "remove room", `DELETE FROM rooms WHERE room_id = ? AND kind = ?`, roomID, string(kind))
}
