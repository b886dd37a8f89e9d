// Package api provides a read-only HTTP view of a running simulation:
// progress, per-layer statistics, cell positions, stored history, and a
// websocket stream of exported frames.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/retinasim/internal/cells"
	"github.com/talgya/retinasim/internal/engine"
	"github.com/talgya/retinasim/internal/persistence"
)

// Server serves simulation state over HTTP.
type Server struct {
	Sim    *engine.Simulation
	Eng    *engine.Engine
	DB     *persistence.DB // optional; enables /history
	Stream *Hub            // optional; enables /stream
	RunID  string
	Seed   int64
	Port   int

	// CellsPerHour caps full snapshot requests per client. 0 = unlimited.
	CellsPerHour int
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/layers", s.handleLayers)
	mux.HandleFunc("/api/v1/history", s.handleHistory)

	cellsHandler := s.handleCells
	if s.CellsPerHour > 0 {
		cellsHandler = RateLimitMiddleware(NewRateLimiter(s.CellsPerHour, time.Hour), cellsHandler)
	}
	mux.HandleFunc("/api/v1/cells", cellsHandler)

	if s.Stream != nil {
		mux.Handle("/api/v1/stream", s.Stream)
	}

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "run", s.RunID)

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for the origins listed in CORS_ORIGINS
// (comma-separated). Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	st := s.Sim.CurrentStats()
	status := map[string]any{
		"run_id":        s.RunID,
		"seed":          s.Seed,
		"tick":          s.Sim.CurrentTick(),
		"total_cells":   st.TotalCells,
		"moving":        st.Moving,
		"settled":       st.Settled,
		"out_of_bounds": st.OutOfBounds,
		"field_total":   st.FieldTotal,
		"field_max":     st.FieldMax,
	}
	if s.Eng != nil {
		status["max_steps"] = s.Eng.MaxSteps
		status["running"] = s.Eng.Running()
	}
	if s.Stream != nil {
		status["viewers"] = s.Stream.Clients()
	}
	writeJSON(w, status)
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	writeJSON(w, s.Sim.CurrentStats().Layers)
}

// handleCells returns cell positions. Query: type=<name>, limit=<n>.
func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	filter, ok := parseTypeParam(w, r)
	if !ok {
		return
	}
	limit := -1
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	out := make([]cells.Cell, 0)
	for _, c := range s.Sim.Snapshot() {
		if filter != 0 && c.Type != filter {
			continue
		}
		if limit >= 0 && len(out) >= limit {
			break
		}
		out = append(out, c)
	}
	writeJSON(w, out)
}

// handleHistory returns stored layer statistics for one type.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	if s.DB == nil {
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
		return
	}
	t, ok := parseTypeParam(w, r)
	if !ok {
		return
	}
	if t == 0 {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}
	rows, err := s.DB.LayerHistory(s.RunID, t)
	if err != nil {
		slog.Error("layer history query failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func parseTypeParam(w http.ResponseWriter, r *http.Request) (cells.CellType, bool) {
	name := r.URL.Query().Get("type")
	if name == "" {
		return 0, true
	}
	t, ok := cells.ParseType(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown cell type %q", name), http.StatusBadRequest)
		return 0, false
	}
	return t, true
}

func requireGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
