package store

import (
	"context"
	"sync"

	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

type profileKey struct {
	userID string
	name   string
}

// MemoryBackend keeps everything in process memory. It backs the console
// transport and tests; Fail makes every later call return that error.
type MemoryBackend struct {
	mu       sync.Mutex
	profiles map[profileKey]profiles.Profile
	defaults map[DefaultKey]string
	authors  map[string]Author
	fail     error
	writes   int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		profiles: make(map[profileKey]profiles.Profile),
		defaults: make(map[DefaultKey]string),
		authors:  make(map[string]Author),
	}
}

// Fail injects err into every subsequent call; nil restores normal service.
func (m *MemoryBackend) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MemoryBackend) LoadProfiles(ctx context.Context) ([]profiles.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	out := make([]profiles.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryBackend) LoadDefaults(ctx context.Context) (map[DefaultKey]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	out := make(map[DefaultKey]string, len(m.defaults))
	for k, v := range m.defaults {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryBackend) UpsertProfile(ctx context.Context, p profiles.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.profiles[profileKey{userID: p.UserID, name: p.Name}] = p
	m.writes++
	return nil
}

func (m *MemoryBackend) DeleteProfile(ctx context.Context, userID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.profiles, profileKey{userID: userID, name: name})
	m.writes++
	return nil
}

func (m *MemoryBackend) UpsertDefault(ctx context.Context, key DefaultKey, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.defaults[key] = name
	m.writes++
	return nil
}

func (m *MemoryBackend) DeleteDefault(ctx context.Context, key DefaultKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.defaults, key)
	m.writes++
	return nil
}

func (m *MemoryBackend) GetAuthor(ctx context.Context, messageID string) (Author, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return Author{}, false, m.fail
	}
	a, ok := m.authors[messageID]
	return a, ok, nil
}

func (m *MemoryBackend) InsertAuthor(ctx context.Context, a Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.authors[a.MessageID] = a
	m.writes++
	return nil
}

func (m *MemoryBackend) Close(ctx context.Context) error {
	return nil
}
