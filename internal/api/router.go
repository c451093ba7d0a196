package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Printer state and history
			r.Get("/status", s.handleStatus)
			r.Get("/commands", s.handleCommands)
			r.Get("/print-history", s.handlePrintHistory)
			r.Get("/error-history", s.handleErrorHistory)

			// Lifecycle controls
			r.Post("/reset", s.handleReset)
			r.Post("/clear-history", s.handleClearHistory)
			r.Get("/command-delay", s.handleGetCommandDelay)
			r.Post("/command-delay", s.handleSetCommandDelay)

			// Error simulation
			r.Route("/errors", func(r chi.Router) {
				r.Post("/simulate", s.handleSimulateError)
				r.Get("/conditions", s.handleListErrorConditions)
				r.Post("/conditions", s.handleAddErrorCondition)
				r.Delete("/conditions", s.handleClearErrorConditions)
				r.Delete("/conditions/{id}", s.handleRemoveErrorCondition)
			})

			// Network fault pipeline
			r.Route("/network/conditions", func(r chi.Router) {
				r.Get("/", s.handleListNetworkConditions)
				r.Post("/", s.handleSetNetworkCondition)
				r.Delete("/", s.handleClearNetworkConditions)
				r.Delete("/{handle}", s.handleClearNetworkCondition)
			})

			// WebSocket event stream
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
