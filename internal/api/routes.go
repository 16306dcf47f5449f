package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
	})

	// Live stream, no request timeout
	r.With(s.authMiddleware).Get("/ws", s.HandleWebSocket)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/state", s.HandleGetState)
		r.Get("/raw", s.HandleGetRaw)

		// Messages
		r.Route("/messages", func(r chi.Router) {
			r.Get("/", s.HandleListMessages)
			r.Post("/", s.HandleSendMessage)
			r.Get("/{id}", s.HandleGetMessage)
		})

		// Events
		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.HandleListEvents)
		})
	})
}
