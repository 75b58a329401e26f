package store

import (
	"context"

	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

// ResolveDefault picks the profile for an un-prefixed message. Precedence is
// channel, then server (only when serverID is set), then global.
//
// The most specific scope that has an assignment decides the outcome. When
// that assignment names a profile that has since been deleted, the result is
// none: less specific scopes are not consulted.
func (s *Store) ResolveDefault(userID, serverID, channelID string) (profiles.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]DefaultKey, 0, 3)
	keys = append(keys, ChannelKey(userID, channelID))
	if serverID != "" {
		keys = append(keys, ServerKey(userID, serverID))
	}
	keys = append(keys, GlobalKey(userID))

	for _, key := range keys {
		name, ok := s.defaults[key]
		if !ok {
			continue
		}
		p, ok := s.profiles[userID][name]
		return p, ok
	}
	return profiles.Profile{}, false
}

// SetDefault assigns name to key. An empty name clears the assignment, which
// is a no-op when there is none. A non-empty name must be an existing profile
// of key.UserID.
func (s *Store) SetDefault(ctx context.Context, key DefaultKey, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		if _, ok := s.defaults[key]; !ok {
			return nil
		}
		if err := s.backend.DeleteDefault(ctx, key); err != nil {
			return storageErr("delete default", err)
		}
		delete(s.defaults, key)
		return nil
	}

	if _, ok := s.profiles[key.UserID][name]; !ok {
		return ErrProfileNotFound
	}
	if err := s.backend.UpsertDefault(ctx, key, name); err != nil {
		return storageErr("upsert default", err)
	}
	s.defaults[key] = name
	return nil
}

// Defaults returns every assignment held by userID.
func (s *Store) Defaults(userID string) map[DefaultKey]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[DefaultKey]string)
	for k, v := range s.defaults {
		if k.UserID == userID {
			out[k] = v
		}
	}
	return out
}
