package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/masquerade/pkg/bot"
	"github.com/dotsetgreg/masquerade/pkg/profiles"
	"github.com/dotsetgreg/masquerade/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, s.SaveProfile(context.Background(), profiles.Profile{UserID: "u1", Name: "bob", Colour: "red"}))
	return s
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s := NewServer("127.0.0.1", 0, "test", Sources{})
	rec, body := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "OK", body["status"])
}

func TestReady(t *testing.T) {
	ready := false
	s := NewServer("127.0.0.1", 0, "test", Sources{
		Ready:    func() bool { return ready },
		Channels: func() map[string]bool { return map[string]bool{"discord": ready} },
	})

	rec, body := get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, map[string]any{"discord": false}, body["channels"])

	ready = true
	rec, _ = get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	s := NewServer("127.0.0.1", 0, "1.2.3", Sources{
		Bot:   func() bot.Stats { return bot.Stats{Received: 4, SegmentsSent: 3} },
		Store: newTestStore(t),
	})

	rec, body := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.2.3", body["version"])

	botStats := body["bot"].(map[string]any)
	assert.Equal(t, float64(4), botStats["events_received"])
	assert.Equal(t, float64(3), botStats["segments_sent"])

	storeStats := body["store"].(map[string]any)
	assert.Equal(t, float64(1), storeStats["profiles"])
	assert.NotContains(t, body, "channels")
}

func TestProfilesHiddenByDefault(t *testing.T) {
	s := NewServer("127.0.0.1", 0, "test", Sources{Store: newTestStore(t)})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u1/profiles", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfiles(t *testing.T) {
	s := NewServer("127.0.0.1", 0, "test", Sources{Store: newTestStore(t), ExposeProfiles: true})

	rec, body := get(t, s.Handler(), "/users/u1/profiles")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{map[string]any{"name": "bob", "colour": "red"}}, body["profiles"])

	_, body = get(t, s.Handler(), "/users/nobody/profiles")
	assert.Equal(t, []any{}, body["profiles"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartStop(t *testing.T) {
	s := NewServer("127.0.0.1", 0, "test", Sources{})
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
