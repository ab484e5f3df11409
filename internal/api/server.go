// Package api provides the HTTP API for creating, driving and observing
// simulations.
// GET endpoints are public (read-only observation).
// POST and DELETE endpoints require a bearer token when an admin key is set.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talgya/mind-lab/internal/engine"
	"github.com/talgya/mind-lab/internal/persistence"
)

const (
	maxStreamConns = 16
	maxBodyBytes   = 64 << 10
	defaultEvents  = 100
)

// Server serves simulations over HTTP.
type Server struct {
	Registry *Registry
	// Base is the configuration new simulations start from; request fields
	// override it.
	Base engine.Config
	Deps engine.Deps
	// DB, when set, records every simulation and serves the stored records.
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST and DELETE. Empty = open.
	// RateLimit is start/step calls per IP per minute. Zero disables it.
	RateLimit int

	// Active stream connections, SSE and WebSocket together (atomic).
	streamConns int32
}

// Handler builds the route table.
func (s *Server) Handler(ctx context.Context) http.Handler {
	var limiter *RateLimiter
	if s.RateLimit > 0 {
		limiter = NewRateLimiter(ctx, s.RateLimit, time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/simulations", s.adminOnly(s.handleCreate))
	mux.HandleFunc("GET /api/v1/simulations", s.handleList)
	mux.HandleFunc("GET /api/v1/simulations/{id}/state", s.handleState)
	mux.HandleFunc("POST /api/v1/simulations/{id}/start", s.adminOnly(limiter.Limit(s.handleStart)))
	mux.HandleFunc("POST /api/v1/simulations/{id}/step", s.adminOnly(limiter.Limit(s.handleStep)))
	mux.HandleFunc("DELETE /api/v1/simulations/{id}", s.adminOnly(s.handleDelete))
	mux.HandleFunc("GET /api/v1/simulations/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/simulations/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /ws/simulations/{id}", s.handleWebSocket)

	// Stored records outlive the in-memory registry.
	mux.HandleFunc("GET /api/v1/records", s.handleRecords)
	mux.HandleFunc("GET /api/v1/records/{id}/frames", s.handleRecordFrames)
	mux.HandleFunc("GET /api/v1/records/{id}/events", s.handleRecordEvents)

	return corsMiddleware(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and stops every background run.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logrus.WithFields(logrus.Fields{
		"addr":       srv.Addr,
		"admin_auth": s.AdminKey != "",
		"recording":  s.DB != nil,
		"rate_limit": s.RateLimit,
	}).Info("HTTP API starting")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		s.Registry.Shutdown()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Closing the buses ends open streams so Shutdown does not wait on them.
	s.Registry.Shutdown()
	err := srv.Shutdown(shutdownCtx)
	logrus.Info("HTTP API stopped")
	return err
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request carries the admin token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires the bearer token when an admin key is configured.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey != "" && !s.checkBearerToken(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "Historical Mind-Lab API",
		"version":     "1.0.0",
		"description": "Survival simulation of a historical figure under a scripted crisis",
		"endpoints": map[string]string{
			"simulations": "/api/v1/simulations",
			"stream":      "/api/v1/simulations/{id}/stream",
			"websocket":   "/ws/simulations/{id}",
			"records":     "/api/v1/records",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"active_simulations": s.Registry.Active(),
		"total_simulations":  s.Registry.Len(),
	})
}

// createRequest overrides fields of the base configuration. Omitted fields
// keep the base values.
type createRequest struct {
	AgentName        string   `json:"agent_name"`
	BirthYear        int      `json:"birth_year"`
	Traits           []string `json:"traits"`
	StartingLocation string   `json:"starting_location"`
	StartingStress   *int     `json:"starting_stress"`
	Inventory        []string `json:"inventory"`
	MaxTurns         int      `json:"max_turns"`
}

func (req createRequest) config(base engine.Config) engine.Config {
	cfg := base
	cfg.Agent = base.Agent.Clone()
	if req.AgentName != "" {
		cfg.Agent.Name = req.AgentName
	}
	if req.BirthYear != 0 {
		cfg.Agent.BirthYear = req.BirthYear
	}
	if req.Traits != nil {
		cfg.Agent.Traits = req.Traits
	}
	if req.StartingLocation != "" {
		cfg.StartLocation = req.StartingLocation
	}
	if req.StartingStress != nil {
		cfg.StartStress = *req.StartingStress
	}
	if req.Inventory != nil {
		cfg.Inventory = req.Inventory
	}
	if req.MaxTurns != 0 {
		cfg.MaxTurns = req.MaxTurns
	}
	return cfg
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MaxTurns < 0 {
		writeError(w, http.StatusBadRequest, "max_turns must be positive")
		return
	}

	sim, err := engine.New(req.config(s.Base), s.Deps)
	if err != nil {
		// Every construction failure is a fault in the requested setup.
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Registry.Add(sim)
	if s.DB != nil {
		persistence.NewRecorder(s.DB).Attach(sim)
	}

	writeJSON(w, http.StatusCreated, sim.State())
}

type listItem struct {
	SimulationID    string        `json:"simulation_id"`
	Status          engine.Status `json:"status"`
	AgentName       string        `json:"agent_name"`
	CurrentLocation string        `json:"current_location"`
	Turn            int           `json:"turn"`
	IsSafe          bool          `json:"is_safe"`
	CreatedAt       string        `json:"created_at"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := engine.Status(r.URL.Query().Get("status"))
	items := []listItem{}
	for _, sim := range s.Registry.List() {
		snap := sim.State()
		if status != "" && snap.Status != status {
			continue
		}
		items = append(items, listItem{
			SimulationID:    snap.SimulationID,
			Status:          snap.Status,
			AgentName:       snap.Agent.Name,
			CurrentLocation: snap.Location.Name,
			Turn:            snap.Turn,
			IsSafe:          snap.IsSafe,
			CreatedAt:       sim.CreatedAt().UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// lookup resolves the {id} path value, writing 404 when it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*engine.Simulation, bool) {
	sim, err := s.Registry.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return sim, true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sim.State())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Registry.Start(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":       "Simulation started",
		"simulation_id": id,
		"status":        engine.StatusRunning,
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	res, err := sim.Step(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Registry.Remove(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":       "Simulation deleted",
		"simulation_id": id,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	history := sim.History()
	if history == nil {
		history = []engine.Frame{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"simulation_id":   sim.ID(),
		"total_decisions": len(history),
		"history":         history,
	})
}

// requireDB writes 404 when recording is disabled.
func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.DB == nil {
		writeError(w, http.StatusNotFound, "recording disabled")
		return false
	}
	return true
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	records, err := s.DB.ListSimulations(r.URL.Query().Get("status"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRecordFrames(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	frames, err := s.DB.Frames(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frames)
}

func (s *Server) handleRecordEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit := defaultEvents
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := s.DB.RecentEvents(r.PathValue("id"), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// acquireStream reserves a stream slot, writing 503 when none is free.
func (s *Server) acquireStream(w http.ResponseWriter) bool {
	if atomic.AddInt32(&s.streamConns, 1) > maxStreamConns {
		atomic.AddInt32(&s.streamConns, -1)
		writeError(w, http.StatusServiceUnavailable, "too many stream connections")
		return false
	}
	return true
}

func (s *Server) releaseStream() {
	atomic.AddInt32(&s.streamConns, -1)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, engine.ErrUnknownStart):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logrus.WithError(err).Warn("request failed")
	}
	writeError(w, code, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
