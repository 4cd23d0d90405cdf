package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-enroll/internal/facematch"
	"github.com/kozaktomas/face-enroll/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	matcher := facematch.NewMatcher(s.records, s.config.Match.Tolerance)

	usersHandler := handlers.NewUsersHandler(s.records)
	syncHandler := handlers.NewSyncHandler(s.syncer, s.records, s.index)
	matchHandler := handlers.NewMatchHandler(matcher, s.detector, s.index, s.config.Match.Nearest)
	mirrorHandler := handlers.NewMirrorHandler(s.records)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Users
		r.Get("/users", usersHandler.List)
		r.Get("/users/{name}", usersHandler.Get)

		// Cache
		r.Post("/sync", syncHandler.Sync)

		// Recognition
		r.Post("/match", matchHandler.Match)

		// PostgreSQL mirror (503 without DATABASE_URL)
		r.Get("/mirror", mirrorHandler.Status)
		r.Get("/mirror/users", mirrorHandler.List)
		r.Get("/mirror/users/{id}", mirrorHandler.Get)
	})
}
