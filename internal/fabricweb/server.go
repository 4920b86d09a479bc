// Package fabricweb implements the daemon's HTTP control surface: liveness,
// scope introspection, spawn/exit, and a bus tail for observability tools.
package fabricweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/wasmind-run/fabric/internal/baselib/actor"
	"github.com/wasmind-run/fabric/internal/bus"
	"github.com/wasmind-run/fabric/internal/busweb"
	"github.com/wasmind-run/fabric/internal/coordinator"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

// Config holds the control surface's listen address and backing
// dependencies.
type Config struct {
	Addr        string
	Coordinator actor.ActorRef[coordinator.CoordinatorCommand, coordinator.CoordinatorResult]
	Bus         *bus.Bus
}

// Server is the HTTP control surface for a running fabric daemon.
type Server struct {
	cfg Config
	mux *http.ServeMux
	srv *http.Server

	mu      sync.Mutex
	started bool
}

// NewServer builds a Server and registers its routes. It does not start
// listening until Start is called.
func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/scopes", s.handleScopes)
	s.mux.HandleFunc("/v1/scopes/spawn", s.handleSpawn)
	s.mux.HandleFunc("/v1/scopes/exit", s.handleExit)
	s.mux.Handle("/v1/bus/tail", busweb.NewHandler(s.cfg.Bus))
}

// Start begins serving on cfg.Addr in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("control surface already started")
	}

	s.srv = &http.Server{Addr: s.cfg.Addr, Handler: s.mux}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.ErrorS(context.Background(), "control surface stopped", "err", err)
		}
	}()

	s.started = true
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	result, err := s.cfg.Coordinator.Ask(r.Context(), coordinator.LivenessCmd{}).
		Await(r.Context()).Unpack()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	live, ok := result.(coordinator.LivenessResult)
	if !ok || !live.Alive {
		http.Error(w, "not alive", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, live)
}

func (s *Server) handleScopes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.cfg.Coordinator.Ask(r.Context(), coordinator.ScopeSnapshotCmd{}).
		Await(r.Context()).Unpack()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	snap, ok := result.(coordinator.ScopeSnapshotResult)
	if !ok {
		http.Error(w, "unexpected result type", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

type spawnRequest struct {
	LogicalNames []string `json:"logical_names"`
	Name         string   `json:"name"`
	Parent       string   `json:"parent"`
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	parent := fabscope.Root
	if strings.TrimSpace(req.Parent) != "" {
		parent = fabscope.Scope(req.Parent)
	}

	result, err := s.cfg.Coordinator.Ask(r.Context(), coordinator.SpawnScopeCmd{
		LogicalNames: req.LogicalNames,
		Name:         req.Name,
		Parent:       parent,
	}).Await(r.Context()).Unpack()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scoped, ok := result.(coordinator.ScopeResult)
	if !ok {
		http.Error(w, "unexpected result type", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, scoped)
}

type exitRequest struct {
	Scope string `json:"scope"`
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req exitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scope := fabscope.Root
	if strings.TrimSpace(req.Scope) != "" {
		scope = fabscope.Scope(req.Scope)
	}

	if _, err := s.cfg.Coordinator.Ask(r.Context(), coordinator.RequestExitCmd{
		Scope: scope,
	}).Await(r.Context()).Unpack(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
