package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var sqliteQueries = sqlQueries{
	loadProfiles: `SELECT user_id, name, display_name, avatar, colour FROM profiles`,
	loadDefaults: `SELECT scope, user_id, scope_id, name FROM profile_defaults`,
	upsertProfile: `INSERT INTO profiles (user_id, name, display_name, avatar, colour)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			display_name = excluded.display_name,
			avatar = excluded.avatar,
			colour = excluded.colour`,
	deleteProfile: `DELETE FROM profiles WHERE user_id = ? AND name = ?`,
	upsertDefault: `INSERT INTO profile_defaults (scope, user_id, scope_id, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, user_id, scope_id) DO UPDATE SET name = excluded.name`,
	deleteDefault: `DELETE FROM profile_defaults WHERE scope = ? AND user_id = ? AND scope_id = ?`,
	getAuthor:     `SELECT user_id FROM authors WHERE message_id = ?`,
	insertAuthor:  `INSERT INTO authors (message_id, user_id) VALUES (?, ?)`,
}

// NewSQLiteBackend creates/opens the database at path. Use ":memory:" for a
// throwaway database.
func NewSQLiteBackend(path string) (Backend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One shared connection: avoids writer lock contention, and keeps a
	// ":memory:" database alive for the lifetime of the backend.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlBackend{db: db, q: sqliteQueries}, nil
}

func initSQLite(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			display_name TEXT,
			avatar TEXT,
			colour TEXT,
			PRIMARY KEY (user_id, name)
		);`,
		`CREATE TABLE IF NOT EXISTS profile_defaults (
			scope TEXT NOT NULL,
			user_id TEXT NOT NULL,
			scope_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			PRIMARY KEY (scope, user_id, scope_id)
		);`,
		`CREATE TABLE IF NOT EXISTS authors (
			message_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return nil
}
