package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-enroll/internal/config"
	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/facematch"
	"github.com/kozaktomas/face-enroll/internal/web/handlers"
	"github.com/kozaktomas/face-enroll/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	records    *facematch.RecordSet
	index      *database.UserIndex
	syncer     handlers.Syncer
	detector   facematch.Detector
}

// NewServer creates a new web server serving the records published in records.
// syncer refreshes them on demand and detector finds faces in uploaded images.
func NewServer(
	cfg *config.Config, records *facematch.RecordSet, syncer handlers.Syncer, detector facematch.Detector,
) *Server {
	r := chi.NewRouter()

	index := database.NewUserIndex()
	if skipped := index.Build(records.Records()); skipped > 0 {
		log.Printf("warning: %d users left out of the nearest-user index", skipped)
	}

	s := &Server{
		config:   cfg,
		router:   r,
		records:  records,
		index:    index,
		syncer:   syncer,
		detector: detector,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS())
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Web.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // sync of a large enrollment tree
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
