package store

// writeCount reports how many mutating calls reached the backend.
func (m *MemoryBackend) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
