package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

// sqlQueries holds one dialect's statements. Parameter order is fixed by the
// methods of sqlBackend.
type sqlQueries struct {
	loadProfiles  string
	loadDefaults  string
	upsertProfile string
	deleteProfile string
	upsertDefault string
	deleteDefault string
	getAuthor     string
	insertAuthor  string
}

// sqlBackend implements Backend over database/sql for the relational
// drivers. Tables mirror the document layout: profiles keyed by
// (user_id, name), profile_defaults keyed by (scope, user_id, scope_id),
// authors keyed by message_id.
type sqlBackend struct {
	db *sql.DB
	q  sqlQueries
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (b *sqlBackend) LoadProfiles(ctx context.Context) ([]profiles.Profile, error) {
	rows, err := b.db.QueryContext(ctx, b.q.loadProfiles)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []profiles.Profile
	for rows.Next() {
		var (
			p                       profiles.Profile
			display, avatar, colour sql.NullString
		)
		if err := rows.Scan(&p.UserID, &p.Name, &display, &avatar, &colour); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.DisplayName = display.String
		p.Avatar = avatar.String
		p.Colour = colour.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (b *sqlBackend) LoadDefaults(ctx context.Context) (map[DefaultKey]string, error) {
	rows, err := b.db.QueryContext(ctx, b.q.loadDefaults)
	if err != nil {
		return nil, fmt.Errorf("query defaults: %w", err)
	}
	defer rows.Close()

	out := make(map[DefaultKey]string)
	for rows.Next() {
		var (
			key   DefaultKey
			scope string
			name  string
		)
		if err := rows.Scan(&scope, &key.UserID, &key.ScopeID, &name); err != nil {
			return nil, fmt.Errorf("scan default: %w", err)
		}
		key.Scope = Scope(scope)
		out[key] = name
	}
	return out, rows.Err()
}

func (b *sqlBackend) UpsertProfile(ctx context.Context, p profiles.Profile) error {
	_, err := b.db.ExecContext(ctx, b.q.upsertProfile,
		p.UserID, p.Name, nullable(p.DisplayName), nullable(p.Avatar), nullable(p.Colour))
	return err
}

func (b *sqlBackend) DeleteProfile(ctx context.Context, userID, name string) error {
	_, err := b.db.ExecContext(ctx, b.q.deleteProfile, userID, name)
	return err
}

func (b *sqlBackend) UpsertDefault(ctx context.Context, key DefaultKey, name string) error {
	_, err := b.db.ExecContext(ctx, b.q.upsertDefault, string(key.Scope), key.UserID, key.ScopeID, name)
	return err
}

func (b *sqlBackend) DeleteDefault(ctx context.Context, key DefaultKey) error {
	_, err := b.db.ExecContext(ctx, b.q.deleteDefault, string(key.Scope), key.UserID, key.ScopeID)
	return err
}

func (b *sqlBackend) GetAuthor(ctx context.Context, messageID string) (Author, bool, error) {
	a := Author{MessageID: messageID}
	err := b.db.QueryRowContext(ctx, b.q.getAuthor, messageID).Scan(&a.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return Author{}, false, nil
	}
	if err != nil {
		return Author{}, false, err
	}
	return a, true, nil
}

func (b *sqlBackend) InsertAuthor(ctx context.Context, a Author) error {
	_, err := b.db.ExecContext(ctx, b.q.insertAuthor, a.MessageID, a.UserID)
	return err
}

func (b *sqlBackend) Close(ctx context.Context) error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
