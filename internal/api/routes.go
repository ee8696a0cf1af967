package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/ingestion", func(r chi.Router) {
			r.Post("/upload", h.Upload)
			r.Post("/resume/{batchId}", h.Resume)
			r.Get("/status/{batchId}", h.BatchStatus)
			r.Get("/history", h.History)
		})

		r.Route("/rides", func(r chi.Router) {
			r.Get("/", h.ListRides)
			r.Post("/", h.CreateRide)
			r.Patch("/{bookingId}/status", h.UpdateRideStatus)
			r.Delete("/{bookingId}", h.DeleteRide)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/kpis", h.KPIs)
			r.Get("/cancellations", h.Cancellations)
			r.Get("/vehicles", h.VehiclePerformance)
			r.Get("/hourly", h.HourlyTraffic)
		})

		r.Post("/chat", h.Chat)
	})

	return r
}
