// Package store owns profile and default-assignment data. Every read is
// served from an in-memory mirror; every write goes to the Backend first and
// is applied to the mirror inside the same write-lock acquisition, so readers
// never observe a state that was not made durable.
//
// A crash between a durable write and the mirror update loses nothing: the
// next Open re-scans the Backend.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

type Store struct {
	backend Backend
	limit   int

	mu       sync.RWMutex
	profiles map[string]map[string]profiles.Profile
	defaults map[DefaultKey]string
}

// Stats is a point-in-time count of the mirror contents.
type Stats struct {
	Users    int `json:"users"`
	Profiles int `json:"profiles"`
	Defaults int `json:"defaults"`
}

// Open loads every profile and default from backend.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	ps, err := backend.LoadProfiles(ctx)
	if err != nil {
		return nil, storageErr("load profiles", err)
	}
	ds, err := backend.LoadDefaults(ctx)
	if err != nil {
		return nil, storageErr("load defaults", err)
	}

	s := &Store{
		backend:  backend,
		limit:    profiles.MaxPerUser,
		profiles: make(map[string]map[string]profiles.Profile),
		defaults: make(map[DefaultKey]string, len(ds)),
	}
	for _, p := range ps {
		s.put(p)
	}
	for k, v := range ds {
		s.defaults[k] = v
	}

	logger.InfoCF("store", "Mirror loaded", map[string]any{
		"users":    len(s.profiles),
		"profiles": len(ps),
		"defaults": len(ds),
	})
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

func (s *Store) put(p profiles.Profile) {
	user, ok := s.profiles[p.UserID]
	if !ok {
		user = make(map[string]profiles.Profile)
		s.profiles[p.UserID] = user
	}
	user[p.Name] = p
}

func (s *Store) remove(userID, name string) (profiles.Profile, bool) {
	user, ok := s.profiles[userID]
	if !ok {
		return profiles.Profile{}, false
	}
	p, ok := user[name]
	delete(user, name)
	if len(user) == 0 {
		delete(s.profiles, userID)
	}
	return p, ok
}

// GetProfile never touches storage.
func (s *Store) GetProfile(userID, name string) (profiles.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID][name]
	return p, ok
}

// GetProfiles returns the user's profiles sorted by name. Unknown users get
// an empty slice.
func (s *Store) GetProfiles(userID string) []profiles.Profile {
	s.mu.RLock()
	user := s.profiles[userID]
	out := make([]profiles.Profile, 0, len(user))
	for _, p := range user {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SaveProfile validates p, enforces the per-user limit for new names, then
// upserts it.
func (s *Store) SaveProfile(ctx context.Context, p profiles.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.profiles[p.UserID]
	if _, exists := user[p.Name]; !exists && len(user) >= s.limit {
		return &CapacityError{Limit: s.limit}
	}
	if err := s.backend.UpsertProfile(ctx, p); err != nil {
		return storageErr("upsert profile", err)
	}
	s.put(p)
	return nil
}

// RenameProfile re-keys oldName to p.Name, replacing its attributes with p's
// and re-pointing every default of the user that named oldName.
func (s *Store) RenameProfile(ctx context.Context, userID, oldName string, p profiles.Profile) error {
	p.UserID = userID
	if p.Name == oldName {
		return s.SaveProfile(ctx, p)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.profiles[userID]
	if _, ok := user[oldName]; !ok {
		return ErrProfileNotFound
	}
	if _, ok := user[p.Name]; ok {
		return ErrProfileExists
	}

	if err := s.backend.UpsertProfile(ctx, p); err != nil {
		return storageErr("upsert renamed profile", err)
	}
	s.put(p)

	if err := s.backend.DeleteProfile(ctx, userID, oldName); err != nil {
		return storageErr("delete renamed profile", err)
	}
	s.remove(userID, oldName)

	for key, name := range s.defaults {
		if key.UserID != userID || name != oldName {
			continue
		}
		if err := s.backend.UpsertDefault(ctx, key, p.Name); err != nil {
			return storageErr("repoint default", err)
		}
		s.defaults[key] = p.Name
	}

	logger.DebugCF("store", "Profile renamed", map[string]any{
		"user_id": userID,
		"from":    oldName,
		"to":      p.Name,
	})
	return nil
}

// ImportProfiles validates every profile and checks the limit for the whole
// batch before writing any of them. It returns how many were written.
func (s *Store) ImportProfiles(ctx context.Context, userID string, ps []profiles.Profile) (int, error) {
	for i := range ps {
		ps[i].UserID = userID
		if err := ps[i].Validate(); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names := make(map[string]struct{}, len(s.profiles[userID])+len(ps))
	for name := range s.profiles[userID] {
		names[name] = struct{}{}
	}
	for _, p := range ps {
		names[p.Name] = struct{}{}
	}
	if len(names) > s.limit {
		return 0, &CapacityError{Limit: s.limit}
	}

	for i, p := range ps {
		if err := s.backend.UpsertProfile(ctx, p); err != nil {
			return i, storageErr("import profile", err)
		}
		s.put(p)
	}
	return len(ps), nil
}

// DeleteProfile removes the profile from storage and the mirror. Deleting a
// missing profile is not an error; found reports whether one existed.
// Defaults naming it are left in place.
func (s *Store) DeleteProfile(ctx context.Context, userID, name string) (profiles.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.DeleteProfile(ctx, userID, name); err != nil {
		return profiles.Profile{}, false, storageErr("delete profile", err)
	}
	p, found := s.remove(userID, name)
	return p, found, nil
}

func (s *Store) GetAuthor(ctx context.Context, messageID string) (Author, bool, error) {
	a, found, err := s.backend.GetAuthor(ctx, messageID)
	if err != nil {
		return Author{}, false, storageErr("get author", err)
	}
	return a, found, nil
}

func (s *Store) SetAuthor(ctx context.Context, a Author) error {
	if err := s.backend.InsertAuthor(ctx, a); err != nil {
		return storageErr("insert author", err)
	}
	return nil
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Users: len(s.profiles), Defaults: len(s.defaults)}
	for _, user := range s.profiles {
		st.Profiles += len(user)
	}
	return st
}
