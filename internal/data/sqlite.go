package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS keywords (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		word TEXT NOT NULL,
		category TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		UNIQUE (word, category)
	)`,
	`CREATE TABLE IF NOT EXISTS blocked_users (
		user_id TEXT PRIMARY KEY,
		blocked_by TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS source_rooms (
		room_id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		added_by TEXT NOT NULL DEFAULT '',
		added_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		added_at INTEGER NOT NULL,
		PRIMARY KEY (room_id, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS user_orders (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		order_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		user_name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		text TEXT NOT NULL,
		room_id TEXT NOT NULL,
		room_title TEXT NOT NULL DEFAULT '',
		intent TEXT NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
	`CREATE TABLE IF NOT EXISTS stats (
		date TEXT PRIMARY KEY,
		processed INTEGER NOT NULL DEFAULT 0,
		forwarded INTEGER NOT NULL DEFAULT 0,
		filtered INTEGER NOT NULL DEFAULT 0
	)`,
}

// OpenDB opens (creating if needed) the relay database at dbPath
func OpenDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: SQLite serializes writers anyway, and the pragmas
	// below are per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return db, nil
}
