package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/masquerade/pkg/logger"
)

// Manager starts and stops a set of channels together and reports their
// state to the status server.
type Manager struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

func NewManager(chs ...Channel) *Manager {
	m := &Manager{channels: make(map[string]Channel)}
	for _, ch := range chs {
		m.channels[ch.Name()] = ch
	}
	return m
}

func (m *Manager) snapshot() map[string]Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		out[name] = ch
	}
	return out
}

// StartAll starts every channel. If any fails, the ones already started are
// stopped again and the failures are returned together.
func (m *Manager) StartAll(ctx context.Context) error {
	chs := m.snapshot()
	if len(chs) == 0 {
		logger.WarnC("channels", "No channels enabled")
		return nil
	}

	logger.InfoC("channels", "Starting all channels")

	var started []string
	var startErrors []string
	for name, ch := range chs {
		logger.InfoCF("channels", "Starting channel", map[string]any{"channel": name})
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			startErrors = append(startErrors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		started = append(started, name)
	}

	if len(startErrors) > 0 {
		for _, name := range started {
			if err := chs[name].Stop(ctx); err != nil {
				logger.WarnCF("channels", "Failed to stop partially-started channel", map[string]any{
					"channel": name,
					"error":   err.Error(),
				})
			}
		}
		sort.Strings(startErrors)
		return fmt.Errorf("failed to start channels: %s", strings.Join(startErrors, "; "))
	}

	logger.InfoCF("channels", "All channels started", map[string]any{"count": len(started)})
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	logger.InfoC("channels", "Stopping all channels")

	var stopErrors []string
	for name, ch := range m.snapshot() {
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			stopErrors = append(stopErrors, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(stopErrors) > 0 {
		sort.Strings(stopErrors)
		return fmt.Errorf("failed to stop channels: %s", strings.Join(stopErrors, "; "))
	}
	return nil
}

// Status maps channel name to whether it is running.
func (m *Manager) Status() map[string]bool {
	status := make(map[string]bool)
	for name, ch := range m.snapshot() {
		status[name] = ch.IsRunning()
	}
	return status
}

// Ready reports whether at least one channel is running and none is down.
func (m *Manager) Ready() bool {
	chs := m.snapshot()
	if len(chs) == 0 {
		return false
	}
	for _, ch := range chs {
		if !ch.IsRunning() {
			return false
		}
	}
	return true
}
