/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Recoverer:  Panic recovery (500 instead of crash)
  2. RequestID:  Unique ID per request for tracing
  3. RealIP:     Client address behind a proxy, used by the rate limiter
  4. Logger:     Structured request logging (logrus)
  5. Metrics:    Request latency per route pattern (optional)
  6. RateLimit:  Requests per minute per IP (httprate)
  7. CORS:       Cross-origin requests for frontends
  8. Secure:     Security headers (unrolled/secure)

ROUTE GROUPS:
  /api/parts/*          Catalog, history, quotes, transfers
  /api/ledger           Movement append
  /api/locations/*      Location tree
  /api/jobs/*           Allocations and job cost
  /api/allocations/*    Deallocation
  /api/admin/*          Reconciliation
  /api/scenarios/*      Demo data (development only)
  /health               Liveness
  /metrics              Prometheus

SECURITY NOTE:
  No authentication middleware. The X-Actor header is trusted, so the
  service must sit behind a gateway that sets it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/fieldops/partsledger/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
)

// RouterConfig holds the HTTP-level settings from config.Config.
type RouterConfig struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	// IsDevelopment relaxes the security headers and enables the demo
	// scenario routes.
	IsDevelopment bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(h.Log))
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware)
	}
	if cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Actor", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))
	r.Use(secure.New(secure.Options{
		STSSeconds:            63072000,
		STSIncludeSubdomains:  true,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		IsDevelopment:         cfg.IsDevelopment,
	}).Handler)

	r.Get("/health", h.HealthCheck)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Part routes
		r.Route("/parts", func(r chi.Router) {
			r.Get("/", h.ListParts)
			r.Post("/", h.CreatePart)
			r.Get("/low-stock", h.LowStock)
			r.Get("/{code}", h.GetPart)
			r.Put("/{code}", h.UpdatePart)
			r.Delete("/{code}", h.DeletePart)
			r.Get("/{code}/history", h.PartHistory)
			r.Get("/{code}/price", h.PriceQuote)
			r.Post("/{code}/transfer", h.TransferPart)
		})

		r.Post("/ledger", h.AppendEntry)

		// Location routes
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", h.ListLocations)
			r.Post("/", h.CreateLocation)
			r.Get("/{id}", h.GetLocation)
			r.Get("/{id}/path", h.LocationPath)
			r.Post("/{id}/move", h.MoveLocation)
			r.Post("/{id}/active", h.SetLocationActive)
		})

		// Job routes
		r.Route("/jobs/{job}", func(r chi.Router) {
			r.Get("/allocations", h.ListJobAllocations)
			r.Post("/allocations", h.Allocate)
			r.Get("/cost", h.JobCost)
		})
		r.Delete("/allocations/{id}", h.Deallocate)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/reconcile", h.LastReconcile)
			r.Post("/reconcile", h.Reconcile)
		})

		// Scenario routes
		if cfg.IsDevelopment {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
