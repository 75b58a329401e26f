// Package health serves liveness, readiness and status endpoints for a
// running bot.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"

	"github.com/dotsetgreg/masquerade/pkg/bot"
	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/store"
)

// Sources supplies the live state reported by the server. Any nil field is
// left out of the status document.
type Sources struct {
	Bot      func() bot.Stats
	Store    *store.Store
	Channels func() map[string]bool
	Ready    func() bool
	// ExposeProfiles serves /users/{user_id}/profiles. The route has no
	// access control: anyone who can reach the server can read any user's
	// profiles, so only enable it on a loopback or otherwise private bind.
	ExposeProfiles bool
}

type Server struct {
	addr      string
	version   string
	src       Sources
	startTime time.Time
	srv       *http.Server
	listener  net.Listener
}

func NewServer(host string, port int, version string, src Sources) *Server {
	s := &Server{
		addr:      net.JoinHostPort(host, fmt.Sprint(port)),
		version:   version,
		src:       src,
		startTime: time.Now(),
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.src.ExposeProfiles {
		r.HandleFunc("/users/{user_id}/profiles", s.handleProfiles).Methods(http.MethodGet)
	}
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	logger.InfoCF("health", "Status server listening", map[string]any{"addr": ln.Addr().String()})

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "Status server error", map[string]any{"error": err.Error()})
		}
	}()
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("health", "Error encoding response", map[string]any{"error": err.Error()})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.src.Ready != nil && !s.src.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "NOT_READY",
			"channels": s.channels(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "READY"})
}

func (s *Server) channels() map[string]bool {
	if s.src.Channels == nil {
		return nil
	}
	return s.src.Channels()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := map[string]any{
		"service":   "masquerade",
		"status":    "OK",
		"version":   s.version,
		"uptime":    int(time.Since(s.startTime).Seconds()),
		"timestamp": time.Now().Unix(),
		"runtime": map[string]any{
			"goroutines":      runtime.NumGoroutine(),
			"memory_alloc_mb": float64(m.Alloc) / 1024 / 1024,
			"gc_runs":         m.NumGC,
		},
	}
	if s.src.Bot != nil {
		status["bot"] = s.src.Bot()
	}
	if s.src.Store != nil {
		status["store"] = s.src.Store.Stats()
	}
	if chs := s.channels(); chs != nil {
		status["channels"] = chs
	}
	writeJSON(w, http.StatusOK, status)
}

type profileView struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Colour      string `json:"colour,omitempty"`
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if s.src.Store == nil {
		http.Error(w, "store not available", http.StatusServiceUnavailable)
		return
	}
	userID := mux.Vars(r)["user_id"]
	ps := s.src.Store.GetProfiles(userID)
	out := make([]profileView, 0, len(ps))
	for _, p := range ps {
		out = append(out, profileView{Name: p.Name, DisplayName: p.DisplayName, Avatar: p.Avatar, Colour: p.Colour})
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "profiles": out})
}
