package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes configures all HTTP routes and returns the router.
//
// Route structure:
//
//	GET    /health                        - liveness + database health
//	POST   /api/hymns                     - create a hymn
//	GET    /api/hymns                     - list all hymns
//	GET    /api/hymns/stats               - collection statistics
//	GET    /api/hymns/search/{searchTerm} - full-text search
//	GET    /api/hymns/{number}            - fetch by hymn number
//	PUT    /api/hymns/{number}            - update title/verses
//	DELETE /api/hymns/{number}            - delete by hymn number
//	DELETE /api/hymns/by-id/{id}          - delete by opaque id
func SetupRoutes(handlers *Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	baseMiddleware := ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(),
	)

	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/hymns", func(r chi.Router) {
		r.Post("/", handlers.CreateHymn)
		r.Get("/", handlers.ListHymns)
		r.Get("/stats", handlers.GetHymnStats)
		r.Get("/search/{searchTerm}", handlers.SearchHymns)
		r.Delete("/by-id/{id}", handlers.DeleteHymnByID)
		r.Get("/{number}", handlers.GetHymnByNumber)
		r.Put("/{number}", handlers.UpdateHymn)
		r.Delete("/{number}", handlers.DeleteHymn)
	})

	return baseMiddleware(r)
}
