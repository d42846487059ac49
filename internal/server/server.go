// Package server exposes the notebook pipeline over HTTP + JSON,
// bearer-token authenticated, per spec §6.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tideline/notebook/internal/claims"
	"github.com/tideline/notebook/internal/notebookmgr"
	"github.com/tideline/notebook/internal/queue"
	"github.com/tideline/notebook/internal/retrieval"
	"github.com/tideline/notebook/internal/store"
	"github.com/tideline/notebook/internal/types"
)

// Server wires the notebook manager, queue, claim graph and retriever
// behind an authenticated HTTP API.
type Server struct {
	st        store.Storage
	mgr       *notebookmgr.Manager
	queue     *queue.Queue
	graph     *claims.Graph
	retriever *retrieval.Retriever
	token     string
	log       *slog.Logger
	metrics   *metrics
	mux       *http.ServeMux
}

// New builds a Server. token, if non-empty, is required as a bearer
// token on every request.
func New(st store.Storage, mgr *notebookmgr.Manager, q *queue.Queue, graph *claims.Graph, retriever *retrieval.Retriever, token string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{st: st, mgr: mgr, queue: q, graph: graph, retriever: retriever, token: token, log: log, metrics: newMetrics()}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withMiddleware(s.mux).ServeHTTP(w, r)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if !s.authorize(r) {
			s.writeError(w, types.ErrPermissionDenied)
			return
		}
		next.ServeHTTP(w, r)
		s.metrics.recordRequest(r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return auth == "Bearer "+s.token
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /notebooks", s.handleListNotebooks)
	s.mux.HandleFunc("POST /notebooks", s.handleCreateNotebook)
	s.mux.HandleFunc("PATCH /notebooks/{id}", s.handleRenameNotebook)
	s.mux.HandleFunc("DELETE /notebooks/{id}", s.handleDeleteNotebook)
	s.mux.HandleFunc("POST /notebooks/{id}/batch", s.handleBatch)
	s.mux.HandleFunc("GET /notebooks/{id}/entries/{eid}", s.handleGetEntry)
	s.mux.HandleFunc("GET /notebooks/{id}/browse", s.handleBrowse)
	s.mux.HandleFunc("GET /notebooks/{id}/search", s.handleSearch)
	s.mux.HandleFunc("POST /notebooks/{id}/semantic-search", s.handleSemanticSearch)
	s.mux.HandleFunc("POST /notebooks/{id}/hybrid-search", s.handleHybridSearch)
	s.mux.HandleFunc("POST /notebooks/{id}/claims/batch", s.handleClaimsBatch)
	s.mux.HandleFunc("GET /notebooks/{id}/observe", s.handleObserve)
	s.mux.HandleFunc("GET /notebooks/{id}/jobs/stats", s.handleJobStats)
	s.mux.HandleFunc("GET /notebooks/{id}/jobs/next", s.handleJobNext)
	s.mux.HandleFunc("POST /notebooks/{id}/jobs/{jid}/complete", s.handleJobComplete)
	s.mux.HandleFunc("POST /notebooks/{id}/jobs/{jid}/fail", s.handleJobFail)
	s.mux.HandleFunc("GET /notebooks/{id}/catalog", s.handleCatalog)
	s.mux.HandleFunc("GET /notebooks/{id}/related/{eid}", s.handleRelated)
}

// callerFromRequest extracts the calling identity. The spec leaves
// authentication/JWT validation out of scope; this project reads it
// from a header set by whatever auth layer fronts the server.
func callerFromRequest(r *http.Request) string {
	if c := r.Header.Get("X-Notebook-Caller"); c != "" {
		return c
	}
	return "anonymous"
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.log.Error("encode response", "error", err)
		}
	}
}

type errorResponse struct {
	Error string     `json:"error"`
	Kind  types.Kind `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	status := statusForKind(kind)
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func statusForKind(kind types.Kind) int {
	switch kind {
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindPermissionDenied:
		return http.StatusForbidden
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindConflict:
		return http.StatusConflict
	case types.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string, def float32) float32 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return def
	}
	return float32(n)
}

func queryUint64Ptr(r *http.Request, key string) *uint64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func queryBoolPtr(r *http.Request, key string) *bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	b := strings.EqualFold(v, "true")
	return &b
}
