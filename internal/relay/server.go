package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rickgao/issue-dashboard/internal/connection"
	"github.com/rickgao/issue-dashboard/internal/metrics"
	"github.com/rickgao/issue-dashboard/internal/model"
	"github.com/rickgao/issue-dashboard/internal/version"
)

// StatsSource reports stream manager statistics.
type StatsSource interface {
	Stats() connection.Stats
}

// Server is the HTTP handler for every relay route.
type Server struct {
	hub    *Hub
	stats  StatsSource
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer wires the relay routes.
func NewServer(hub *Hub, stats StatsSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{hub: hub, stats: stats, logger: logger, mux: http.NewServeMux()}

	s.mux.Handle("GET /ws/stream", hub)
	s.mux.HandleFunc("GET /api/snapshot", s.snapshot)
	s.mux.HandleFunc("GET /health", s.health)
	s.mux.Handle("GET /metrics", metrics.Handler(s.metricsSource))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// SnapshotResponse is the body of GET /api/snapshot.
type SnapshotResponse struct {
	Snapshot
	Stats connection.Stats `json:"stats"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                `json:"status"`
	Phase     model.ConnectionPhase `json:"phase"`
	ChannelID string                `json:"channelId,omitempty"`
	Clients   int                   `json:"clients"`
	Version   string                `json:"version"`
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, SnapshotResponse{
		Snapshot: s.hub.Snapshot(),
		Stats:    s.stats.Stats(),
	})
}

// health reports 200 only while the upstream stream is connected.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.Stats()
	resp := HealthResponse{
		Status:    "healthy",
		Phase:     stats.Phase,
		ChannelID: stats.ChannelID,
		Clients:   s.hub.Count(),
		Version:   version.String(),
	}

	code := http.StatusOK
	if stats.Phase != model.PhaseConnected {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

func (s *Server) metricsSource() metrics.Source {
	return metrics.Source{
		Stats:   s.stats.Stats(),
		Metrics: s.hub.Snapshot().Metrics,
		Clients: s.hub.Count(),
	}
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
