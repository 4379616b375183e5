// Package server exposes the distilled collection over a read-only HTTP
// JSON API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/provenance"
	"github.com/ziadkadry99/distill/internal/state"
	"github.com/ziadkadry99/distill/internal/store"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)

	// StatusInterval is how often the status stream polls the store.
	// Zero means two seconds.
	StatusInterval time.Duration
}

// Server serves concepts, notes, documents and provenance.
type Server struct {
	cfg        Config
	store      *store.Store
	tracker    *state.Tracker
	index      vectordb.VectorStore
	graph      *provenance.Graph
	router     chi.Router
	httpServer *http.Server
}

// New creates a server. index may be nil; search then returns no results.
func New(cfg Config, st *store.Store, tracker *state.Tracker, index vectordb.VectorStore) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		tracker: tracker,
		index:   index,
		graph:   provenance.New(st),
	}

	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Long-lived; kept outside the request timeout.
		r.Get("/status/stream", s.handleStatusStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/status", s.handleStatus)
			r.Get("/search", s.handleSearch)
			r.Get("/concepts", s.handleListConcepts)
			r.Get("/concepts/{id}", s.handleGetConcept)
			r.Get("/concepts/{id}/provenance", s.handleProvenance)
			r.Get("/notes/{id}", s.handleGetNote)
			r.Get("/documents/{id}", s.handleGetDocument)
			r.Get("/documents/{id}/concepts", s.handleDocumentConcepts)
		})
	})

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("distill server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
