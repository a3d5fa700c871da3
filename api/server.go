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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/licensees/*   Licensee management
  /api/contracts/*   Contracts, uploads, periods, guarantee, advance
  /api/calculate     Ad-hoc calculations

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Licensee routes
		r.Route("/licensees", func(r chi.Router) {
			r.Get("/", h.ListLicensees)
			r.Post("/", h.CreateLicensee)
			r.Get("/{id}", h.GetLicensee)
		})

		// Contract routes
		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", h.ListContracts)
			r.Post("/", h.CreateContract)
			r.Get("/{id}", h.GetContract)
			r.Get("/{id}/periods", h.ListSalesPeriods)
			r.Get("/{id}/guarantee", h.GetGuaranteeStatus)
			r.Get("/{id}/advance", h.GetAdvance)
			r.Post("/{id}/uploads/preview", h.PreviewUpload)
			r.Post("/{id}/uploads", h.CommitUpload)
		})

		// Ad-hoc calculation
		r.Post("/calculate", h.CalculateRoyalty)
	})

	// Landing page for anyone hitting the API root in a browser.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Royalty Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Royalty Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/licensees">/api/licensees</a> - List licensees</li>
<li><a href="/api/contracts">/api/contracts</a> - List contracts</li>
</ul>
</body>
</html>`))
	})

	return r
}
