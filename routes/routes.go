package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tyson-yobot/command-center-sub002/app"
	"github.com/tyson-yobot/command-center-sub002/handlers"
	"github.com/tyson-yobot/command-center-sub002/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	knowledgeHandler := handlers.NewKnowledgeHandler(deps.KnowledgeService, deps.Logger)
	entryHandler := handlers.NewEntryHandler(deps.Knowledge, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1/knowledge", func(r chi.Router) {
		// Retrieval
		r.Post("/search", knowledgeHandler.HandleSearch)
		r.Post("/query", knowledgeHandler.HandleQuery)

		// Snapshot cache
		r.Get("/cache", knowledgeHandler.HandleCacheStats)
		r.Post("/cache/refresh", knowledgeHandler.HandleCacheRefresh)

		// Entry authoring
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", entryHandler.HandleList)
			r.Post("/", entryHandler.HandleCreate)
			r.Get("/{id}", entryHandler.HandleGet)
			r.Put("/{id}", entryHandler.HandleUpdate)
			r.Delete("/{id}", entryHandler.HandleDelete)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
