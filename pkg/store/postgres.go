package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var postgresQueries = sqlQueries{
	loadProfiles: `SELECT user_id, name, display_name, avatar, colour FROM profiles`,
	loadDefaults: `SELECT scope, user_id, scope_id, name FROM profile_defaults`,
	upsertProfile: `INSERT INTO profiles (user_id, name, display_name, avatar, colour)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, name) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar = EXCLUDED.avatar,
			colour = EXCLUDED.colour`,
	deleteProfile: `DELETE FROM profiles WHERE user_id = $1 AND name = $2`,
	upsertDefault: `INSERT INTO profile_defaults (scope, user_id, scope_id, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope, user_id, scope_id) DO UPDATE SET name = EXCLUDED.name`,
	deleteDefault: `DELETE FROM profile_defaults WHERE scope = $1 AND user_id = $2 AND scope_id = $3`,
	getAuthor:     `SELECT user_id FROM authors WHERE message_id = $1`,
	insertAuthor:  `INSERT INTO authors (message_id, user_id) VALUES ($1, $2)`,
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// NewPostgresBackend connects with the pgx driver and applies the embedded
// migrations.
func NewPostgresBackend(ctx context.Context, dsn string) (Backend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := gooseUp(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return &sqlBackend{db: db, q: postgresQueries}, nil
}
