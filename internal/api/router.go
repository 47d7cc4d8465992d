package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// No auth: monitoring
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/ws", s.handleWebSocket)

			r.Route("/kasa", func(r chi.Router) {
				r.Post("/requests", s.handleSubmitRequest)
				r.Post("/discover", s.handleAction(dispatch.ActionDiscover))
				r.Get("/jobs", s.handleListJobs)

				r.Route("/devices", func(r chi.Router) {
					r.Get("/", s.handleListDevices)

					r.Route("/{address}", func(r chi.Router) {
						r.Get("/", s.handleGetDevice)
						r.Get("/history", s.handleDeviceHistory)
						r.Post("/lookup", s.handleAction(dispatch.ActionLookUp))
						r.Post("/create", s.handleAction(dispatch.ActionCreateDevice))
						r.Post("/power", s.handleAction(dispatch.ActionSetPower))
						r.Post("/color-temp", s.handleAction(dispatch.ActionSetColorTemp))
						r.Post("/brightness", s.handleAction(dispatch.ActionSetBrightness))
						r.Post("/hsv", s.handleAction(dispatch.ActionSetHSV))
						r.Post("/children/{index}/power", s.handleAction(dispatch.ActionSetChildPower))
					})
				})
			})
		})
	})

	return r
}

// handleHealth returns a simple liveness response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"dispatcher": s.dispatcher.Stats().State,
	})
}
