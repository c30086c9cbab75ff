/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/imports/*        Scan data ingestion
  /api/daily-reports/*  Daily report management
  /api/discrepancies/*  Detection and resolution
  /api/periods/*        Wage period lifecycle

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		// Import routes
		r.Route("/imports", func(r chi.Router) {
			r.Post("/scan-data", h.ImportScanData)
		})

		// Daily report routes
		r.Route("/daily-reports", func(r chi.Router) {
			r.Get("/", h.ListDailyReports)
			r.Post("/", h.CreateDailyReport)
			r.Put("/{id}", h.UpdateDailyReport)
		})

		// Discrepancy routes
		r.Route("/discrepancies", func(r chi.Router) {
			r.Get("/", h.ListDiscrepancies)
			r.Post("/detect", h.DetectDiscrepancies)
			r.Post("/{id}/resolve", h.ResolveDiscrepancy)
		})

		// Period routes
		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Post("/", h.CreatePeriod)
			r.Get("/{id}", h.GetPeriod)
			r.Post("/{id}/calculate", h.CalculatePeriod)
			r.Post("/{id}/approve", h.ApprovePeriod)
			r.Post("/{id}/pay", h.PayPeriod)
			r.Post("/{id}/lock", h.LockPeriod)
			r.Delete("/{id}", h.DeletePeriod)
		})
	})

	return r
}
