// Package http exposes registered proxies over a small REST API with a
// server-sent event stream of lifecycle events.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/proxyshape"
	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/internal/selection"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/aretw0/proxyshape/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Registry resolves proxies and persists their snapshots. *session.Manager
// implements it.
type Registry interface {
	Get(id string) (session.Proxy, error)
	IDs() []string
	Save(ctx context.Context, id string) error
	Load(ctx context.Context, id string) error
}

// Server serves the proxies of a Registry.
type Server struct {
	Registry Registry
	Streams  *StreamManager
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStreams shares a StreamManager whose Hooks were given to the proxies.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewHandler creates the HTTP handler.
//
//	GET  /health
//	GET  /info
//	GET  /proxies
//	GET  /events?proxy_id=...
//	GET  /proxies/{id}/references
//	GET  /proxies/{id}/selection
//	GET  /proxies/{id}/payloads?root=/&filter=loaded
//	POST /proxies/{id}/materialize    {"path": "/a", "subtree": false}
//	POST /proxies/{id}/dematerialize  {"path": "/a", "subtree": false}
//	POST /proxies/{id}/select         {"paths": ["/a"], "mode": "add"}
//	POST /proxies/{id}/undo
//	POST /proxies/{id}/redo
//	POST /proxies/{id}/save
//	POST /proxies/{id}/load
func NewHandler(reg Registry, opts ...Option) http.Handler {
	s := &Server{
		Registry: reg,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/proxies", s.ListProxies)
	r.Route("/proxies/{proxyID}", func(r chi.Router) {
		r.Get("/references", s.withProxy(s.GetReferences))
		r.Get("/selection", s.withProxy(s.GetSelection))
		r.Get("/payloads", s.withProxy(s.GetPayloads))
		r.Post("/materialize", s.withProxy(s.Materialize))
		r.Post("/dematerialize", s.withProxy(s.Dematerialize))
		r.Post("/select", s.withProxy(s.Select))
		r.Post("/undo", s.withProxy(s.Undo))
		r.Post("/redo", s.withProxy(s.Redo))
		r.Post("/save", s.SaveSnapshot)
		r.Post("/load", s.LoadSnapshot)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type proxyHandler func(w http.ResponseWriter, r *http.Request, p *proxyshape.Proxy)

func (s *Server) withProxy(h proxyHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "proxyID")
		got, err := s.Registry.Get(id)
		if err != nil {
			s.fail(w, err)
			return
		}
		p, ok := got.(*proxyshape.Proxy)
		if !ok {
			s.fail(w, fmt.Errorf("proxy %q does not support this API", id))
			return
		}
		h(w, r, p)
	}
}

// PathRequest is the body of materialize and dematerialize.
type PathRequest struct {
	Path    domain.Path `json:"path"`
	Subtree bool        `json:"subtree,omitempty"`
}

// NodeResponse reports the node backing a path.
type NodeResponse struct {
	Path domain.Path   `json:"path"`
	Node domain.Handle `json:"node"`
}

// SelectRequest is the body of select.
type SelectRequest struct {
	Paths []domain.Path     `json:"paths"`
	Mode  domain.SelectMode `json:"mode"`
}

// SelectResponse reports the outcome of a selection change.
type SelectResponse struct {
	Selected []domain.Path     `json:"selected"`
	Inserted []selection.Entry `json:"inserted"`
	Removed  []selection.Entry `json:"removed"`
}

// CommandResponse names an undone or redone command.
type CommandResponse struct {
	Command string `json:"command"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.write(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.write(w, http.StatusOK, map[string]string{
		"app":     "proxyshape-http",
		"version": proxyshape.Version,
	})
}

// ListProxies handles GET /proxies.
func (s *Server) ListProxies(w http.ResponseWriter, r *http.Request) {
	s.write(w, http.StatusOK, map[string][]string{"proxies": s.Registry.IDs()})
}

// GetReferences handles GET /proxies/{id}/references.
func (s *Server) GetReferences(w http.ResponseWriter, r *http.Request, p *proxyshape.Proxy) {
	s.write(w, http.StatusOK, p.References())
}

// GetSelection handles GET /proxies/{id}/selection.
func (s *Server) GetSelection(w http.ResponseWriter, r *http.Request, p *proxyshape.Proxy) {
	s.write(w, http.StatusOK, map[string][]domain.Path{"selected": p.Selected()})
}

// GetPayloads handles GET /proxies/{id}/payloads.
func (s *Server) GetPayloads(w http.ResponseWriter, r *http.Request, p *proxyshape.Proxy) {
	root := domain.RootPath
	if q := r.URL.Query().Get("root"); q != "" {
		parsed, err := domain.ParsePath(q)
		if err != nil {
			s.fail(w, err)
			return
		}
		root = parsed
	}
	filter, err := domain.ParsePayloadFilter(r.URL.Query().Get("filter"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.write(w, http.StatusOK, map[string][]domain.Path{"payloads": p.FindPayloads(root, filter)})
}

// Materialize handles POST /proxies/{id}/materialize.
func (s *Server) Materialize(w http.ResponseWriter, r *http.Request, p *proxyshape.Proxy) {
	var body PathRequest
	if !s.decode(w, r, &body) {
		return
	}
	materialize := p.Materialize
	if body.Subtree {
		materialize = p.MaterializeSubtree
	}
	h, err := materialize(body.Path)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, NodeResponse{Path: body.Path, Node: h})
}

// Dematerialize handles POST /proxies/{id}/dematerialize.
func (s *Server) Dematerialize(w http.ResponseWriter, r *http.Request, p *proxyshape.Proxy) {
	var body PathRequest
	if !s.decode(w, r, &body) {
		return
	}
	dematerialize := p.Dematerialize
	if body.Subtree {
		dematerialize = p.DematerializeSubtree
	}
	if err := dematerialize(body.Path); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Select handles POST /proxies/{id}/select.
func (s *Server) Select(w http.ResponseWriter, r *http.Request, p *proxyshape.Proxy) {
	var body SelectRequest
	if !s.decode(w, r, &body) {
		return
	}
	op, err := p.Select(body.Paths, body.Mode)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, SelectResponse{
		Selected: p.Selected(),
		Inserted: op.Inserted,
		Removed:  op.Removed,
	})
}

// Undo handles POST /proxies/{id}/undo.
func (s *Server) Undo(w http.ResponseWriter, r *http.Request, p *proxyshape.Proxy) {
	name, err := p.Undo()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, CommandResponse{Command: name})
}

// Redo handles POST /proxies/{id}/redo.
func (s *Server) Redo(w http.ResponseWriter, r *http.Request, p *proxyshape.Proxy) {
	name, err := p.Redo()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, CommandResponse{Command: name})
}

// SaveSnapshot handles POST /proxies/{id}/save.
func (s *Server) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.Registry.Save(r.Context(), chi.URLParam(r, "proxyID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadSnapshot handles POST /proxies/{id}/load.
func (s *Server) LoadSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.Registry.Load(r.Context(), chi.URLParam(r, "proxyID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	return true
}

func (s *Server) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidPath):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrProxyNotFound),
		errors.Is(err, domain.ErrPrimNotFound),
		errors.Is(err, domain.ErrSnapshotNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotRequested),
		errors.Is(err, domain.ErrNothingToUndo),
		errors.Is(err, domain.ErrNothingToRedo):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	http.Error(w, err.Error(), status)
}
