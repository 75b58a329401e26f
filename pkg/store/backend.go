package store

import (
	"context"

	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

// Scope selects how specific a default assignment is.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeServer  Scope = "server"
	ScopeChannel Scope = "channel"
)

// DefaultKey identifies one default assignment. ScopeID is empty for
// ScopeGlobal, the server id for ScopeServer and the channel id for
// ScopeChannel.
type DefaultKey struct {
	Scope   Scope
	UserID  string
	ScopeID string
}

func GlobalKey(userID string) DefaultKey {
	return DefaultKey{Scope: ScopeGlobal, UserID: userID}
}

func ServerKey(userID, serverID string) DefaultKey {
	return DefaultKey{Scope: ScopeServer, UserID: userID, ScopeID: serverID}
}

func ChannelKey(userID, channelID string) DefaultKey {
	return DefaultKey{Scope: ScopeChannel, UserID: userID, ScopeID: channelID}
}

// Author records which real user triggered a masquerade message.
type Author struct {
	MessageID string
	UserID    string
}

// Backend is durable storage. Single-record writes must be atomic; nothing
// here needs multi-record transactions.
type Backend interface {
	LoadProfiles(ctx context.Context) ([]profiles.Profile, error)
	LoadDefaults(ctx context.Context) (map[DefaultKey]string, error)

	// UpsertProfile is keyed by (Name, UserID) and replaces every other
	// attribute, including clearing unset ones.
	UpsertProfile(ctx context.Context, p profiles.Profile) error
	// DeleteProfile succeeds when the profile does not exist.
	DeleteProfile(ctx context.Context, userID, name string) error

	UpsertDefault(ctx context.Context, key DefaultKey, name string) error
	DeleteDefault(ctx context.Context, key DefaultKey) error

	// GetAuthor reports found=false, err=nil when no record exists.
	GetAuthor(ctx context.Context, messageID string) (Author, bool, error)
	InsertAuthor(ctx context.Context, a Author) error

	Close(ctx context.Context) error
}
