package main

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/opd-ai/go-taskmon/pkg/taskmon"
)

// snapshotSource is the part of taskmon.Monitor the API reads.
type snapshotSource interface {
	Snapshot() *taskmon.Snapshot
	Health() taskmon.HealthCheck
}

// apiServer serves the latest snapshot over HTTP.
type apiServer struct {
	source  snapshotSource
	metrics http.Handler
	logger  *slog.Logger
	router  *mux.Router
}

type errorResponse struct {
	Error string `json:"error"`
}

func newAPIServer(source snapshotSource, metrics http.Handler, logger *slog.Logger) *apiServer {
	s := &apiServer{
		source:  source,
		metrics: metrics,
		logger:  logger,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *apiServer) setupRoutes() {
	s.router.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/processes/{id}", s.handleProcess).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	s.router.Use(s.logRequests)
}

func (s *apiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *apiServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// handleSnapshot returns the latest snapshot. Query parameters: filter
// ([field:]text), sort (id, cpu, memory), top (count) and dead (bool).
func (s *apiServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	if snap == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no snapshot available yet"})
		return
	}

	q := r.URL.Query()
	view := viewOptions{filter: q.Get("filter"), sortBy: q.Get("sort"), dead: true}
	if v := q.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "top must be a non-negative integer"})
			return
		}
		view.top = n
	}
	if v := q.Get("dead"); v != "" {
		dead, err := strconv.ParseBool(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "dead must be a boolean"})
			return
		}
		view.dead = dead
	}

	out, err := view.apply(snap)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleProcess returns one live or dead process by internal id.
func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "id must be an unsigned integer"})
		return
	}
	snap := s.source.Snapshot()
	if snap == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no snapshot available yet"})
		return
	}
	p := snap.ProcessByID(id)
	if p == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "process not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := s.source.Health()
	status := http.StatusOK
	if h.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
