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
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests for the hub frontend
  5. RequireActor: Bearer token, staff route groups only

ROUTE GROUPS:
  /api/bookings/*      Public booking flow, staff cancellation
  /api/certificates/*  Staff workflow, public verify/validate
  /api/payments/*      Gateway webhook and verification
  /api/audit           Staff audit queries
  /api/health          Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: RequireActor
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Booking routes
		r.Route("/bookings", func(r chi.Router) {
			r.Post("/availability", h.CheckAvailability)
			r.Post("/availability/all", h.CheckAllAvailability)
			r.Post("/quote", h.QuoteBooking)
			r.Post("/", h.CreateBooking)
			r.Get("/{id}", h.GetBooking)
			r.With(auth.RequireActor).Post("/{id}/cancel", h.CancelBooking)
		})

		// Certificate routes
		r.Route("/certificates", func(r chi.Router) {
			r.Get("/verify/{code}", h.VerifyCertificate)
			r.Post("/validate", h.ValidateCertificate)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireActor)
				r.Get("/", h.ListCertificates)
				r.Post("/", h.CreateCertificate)
				r.Get("/{id}", h.GetCertificate)
				r.Get("/{id}/pdf", h.CertificatePDF)
				r.Post("/{id}/finance-confirm", h.ConfirmFinance)
				r.Post("/{id}/approve", h.ApproveCertificate)
				r.Post("/{id}/reject", h.RejectCertificate)
			})
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/webhook", h.PaymentWebhook)
			r.Get("/verify/{reference}", h.VerifyPayment)
			r.Post("/verify/{reference}", h.VerifyPayment)
		})

		// Audit routes
		r.With(auth.RequireActor).Get("/audit", h.ListAudit)
	})

	return r
}
