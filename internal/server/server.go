// Package server exposes the resolver over HTTP: a synchronous resolve
// endpoint, a WebSocket stream of orchestration events, and diagnostic
// endpoints for metrics and stored outcomes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/normanking/gravitas/internal/backend"
	"github.com/normanking/gravitas/internal/bus"
	"github.com/normanking/gravitas/internal/config"
	"github.com/normanking/gravitas/internal/gate"
	"github.com/normanking/gravitas/internal/logging"
	"github.com/normanking/gravitas/internal/orchestrator"
	"github.com/normanking/gravitas/internal/outcome"
)

// MaxRequestBytes bounds the resolve request body.
const MaxRequestBytes = 1 * 1024 * 1024

// Server is the HTTP surface of the orchestrator.
type Server struct {
	cfg      config.ServerConfig
	resolver *orchestrator.Resolver
	store    *outcome.Store
	events   *bus.Bus
	srv      *http.Server
	log      *logging.Logger
}

// New creates a server. The outcome store and event bus are optional;
// their endpoints report unavailable when absent.
func New(cfg config.ServerConfig, resolver *orchestrator.Resolver, store *outcome.Store, events *bus.Bus) *Server {
	return &Server{
		cfg:      cfg,
		resolver: resolver,
		store:    store,
		events:   events,
		log:      logging.Global().WithComponent("server"),
	}
}

// Handler builds the route table. Exposed separately so tests can drive
// the server through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/resolve", s.handleResolve)
	mux.HandleFunc("GET /v1/resolve/stream", s.handleStream)
	mux.HandleFunc("GET /v1/outcomes", s.handleOutcomes)
	mux.HandleFunc("GET /v1/outcomes/{id}", s.handleOutcome)
	mux.HandleFunc("GET /v1/metrics", s.handleMetrics)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start binds the listen address and serves until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("listening on http://%s", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ResolveRequest is the JSON body of POST /v1/resolve.
type ResolveRequest struct {
	Text       string `json:"text"`
	ContextRef string `json:"context_ref,omitempty"`
}

// handleResolve runs one input through the full pipeline synchronously.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	body := http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	res, err := s.resolver.Resolve(r.Context(), gate.Input{Text: req.Text, ContextRef: req.ContextRef})
	if err != nil {
		if errors.Is(err, orchestrator.ErrCouncilFailed) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleOutcomes lists recent stored outcomes.
func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome store disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(records),
		"outcomes": records,
	})
}

// handleOutcome returns one stored outcome with its backend records.
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome store disabled")
		return
	}

	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleMetrics returns per-backend call metrics as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"backends":  backend.AllMetrics(),
	})
}

// handleHealth responds to health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if s.store != nil {
		if err := s.store.Health(); err != nil {
			status = "degraded"
		}
	}

	subs := 0
	if s.events != nil {
		subs = s.events.SubscriptionsCount()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        status,
		"service":       "gravitas",
		"subscriptions": subs,
	})
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
