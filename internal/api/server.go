// Package api serves the browse service as JSON over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"

	"csvingest/internal/browse"
	"csvingest/internal/storage"
)

// Logger is the minimal logging interface used by the server.
type Logger interface {
	Printf(format string, v ...any)
}

type Server struct {
	router chi.Router
	browse *browse.Service
	logf   func(format string, v ...any)
}

// NewServer builds the router over svc. A nil logger discards output.
func NewServer(svc *browse.Service, logger Logger) (*Server, error) {
	if svc == nil || svc.Catalog == nil {
		return nil, fmt.Errorf("api: browse service with a catalog required")
	}
	logf := log.New(io.Discard, "", 0).Printf
	if logger != nil {
		logf = logger.Printf
	}
	s := &Server{router: chi.NewRouter(), browse: svc, logf: logf}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			s.logf("request method=%s path=%s dur=%s remote=%s", r.Method, r.URL.Path, time.Since(start), r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleTables)
		r.Get("/tables/{name}", s.handleTable)
		r.Get("/search", s.handleSearch)
		r.Get("/relationships", s.handleRelationships)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.browse.Tables(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid page %q", v))
			return
		}
		page = parsed
	}

	tp, err := s.browse.Table(r.Context(), chi.URLParam(r, "name"), page)
	switch {
	case errors.Is(err, storage.ErrTableNotFound):
		s.writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tablePageResponse{TablePage: tp, Pages: tp.Pages()})
}

type tablePageResponse struct {
	browse.TablePage
	Pages int `json:"pages"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	hits, err := s.browse.Search(r.Context(), q)
	switch {
	case errors.Is(err, browse.ErrEmptyQuery):
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing q parameter"))
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if hits == nil {
		hits = []browse.SearchHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": hits})
}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	hints, err := s.browse.Relationships(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": hints})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	level := "warn"
	if status >= http.StatusInternalServerError {
		level = "error"
	}
	s.logf("request failed level=%s status=%d err=%v", level, status, err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
