/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

SECURITY NOTE:
  No authentication middleware here; the engine sits behind the club
  portal, which owns auth. All endpoints assume an authenticated
  officer.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Escalation engine
		r.Route("/dues", func(r chi.Router) {
			r.Post("/check", h.RunCheck)
			r.Get("/status", h.GetStatus)
		})

		// Roster + per-member operations
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetMember)
				r.Get("/months", h.ListMemberMonths)
				r.Post("/status", h.SetStatus)
				r.Post("/sync", h.SyncPayments)
				r.Post("/extension", h.GrantExtension)
				r.Delete("/extension", h.RevokeExtension)
				r.Post("/forgive", h.Forgive)
				r.Post("/reinstate", h.Reinstate)
			})
		})

		// Stage templates
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Put("/{stage}", h.SaveTemplate)
		})

		// Category switches
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.SaveSettings)
		})
	})

	return r
}
