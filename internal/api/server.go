// Package api exposes the process's health and domain status over a
// lightweight HTTP surface for the operations dashboard.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/polymarket-pulse/trader/internal/bridge"
)

// SupervisorState exposes the supervisor's run state to the API layer.
type SupervisorState interface {
	IsRunning() bool
	TradingMode() string
	ComponentHealth() map[string]string
}

// BridgeState exposes the Redis-to-webhook bridge's running tally.
type BridgeState interface {
	Tally() bridge.Tally
}

// WatchedState exposes the watched-markets controller's current
// subscription set.
type WatchedState interface {
	DesiredMarkets() []string
}

// CopyTradingState exposes a summary of active copy allocations.
type CopyTradingState interface {
	CountActive(ctx context.Context) (int, error)
}

// Server is a lightweight HTTP API for the operations dashboard.
type Server struct {
	httpServer *http.Server
	supervisor SupervisorState
	bridge     BridgeState
	watched    WatchedState
	copy       CopyTradingState
	startedAt  time.Time
}

// NewServer creates a new API server bound to addr.
func NewServer(addr string, supervisor SupervisorState, bridge BridgeState, watched WatchedState, copy CopyTradingState) *Server {
	s := &Server{
		supervisor: supervisor,
		bridge:     bridge,
		watched:    watched,
		copy:       copy,
		startedAt:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/ready", s.handleReady)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/bridge", s.handleBridge)
	mux.HandleFunc("/api/watched", s.handleWatched)
	mux.HandleFunc("/api/copy-trading", s.handleCopyTrading)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Printf("api server listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("api server: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/ready — readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.supervisor.IsRunning()
	resp := map[string]interface{}{
		"ready":        ready,
		"trading_mode": s.supervisor.TradingMode(),
		"uptime_s":     time.Since(s.startedAt).Seconds(),
	}
	if !ready {
		resp["reason"] = "supervisor_not_running"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.writeJSON(w, resp)
}

// GET /api/status — per-component health summary.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"running":      s.supervisor.IsRunning(),
		"trading_mode": s.supervisor.TradingMode(),
		"uptime_s":     time.Since(s.startedAt).Seconds(),
		"components":   s.supervisor.ComponentHealth(),
	})
}

// GET /api/bridge — Redis-to-webhook forwarding tally.
func (s *Server) handleBridge(w http.ResponseWriter, _ *http.Request) {
	t := s.bridge.Tally()
	s.writeJSON(w, map[string]interface{}{
		"messages":  t.Messages,
		"successes": t.Successes,
		"errors":    t.Errors,
	})
}

// GET /api/watched — the watched controller's desired subscription set for
// the live WS feed.
func (s *Server) handleWatched(w http.ResponseWriter, _ *http.Request) {
	markets := s.watched.DesiredMarkets()
	s.writeJSON(w, map[string]interface{}{
		"count":   len(markets),
		"markets": markets,
	})
}

// GET /api/copy-trading — active follower count.
func (s *Server) handleCopyTrading(w http.ResponseWriter, r *http.Request) {
	count, err := s.copy.CountActive(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"active_followers": count,
	})
}
