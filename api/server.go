/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/*          User accounts and transfer history
  /api/products/*       Product registration and browsing
  /api/applications/*   Application lifecycle (apply/allow/refuse)
  /api/admin/*          Manual accrual and settlement passes

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public;
  the acting guardian is identified by the request body.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/transfers", h.GetTransfers)
		})

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProduct)
			r.Get("/family/{familyID}", h.ListFamilyProducts)
		})

		// Application routes
		r.Route("/applications", func(r chi.Router) {
			r.Post("/", h.Apply)
			r.Get("/pending/family/{familyID}", h.ListPendingByFamily)
			r.Get("/pending/product/{productID}", h.ListPendingByProduct)
			r.Get("/user/{nickname}", h.ListByNickname)
			r.Put("/{id}/allow", h.Allow)
			r.Put("/{id}/refuse", h.Refuse)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/accrue", h.RunAccrual)
			r.Post("/settle", h.RunSettlement)
		})
	})

	return r
}
