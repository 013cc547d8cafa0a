package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Chat turn lifecycle
	r.Route("/chat", func(r chi.Router) {
		r.Post("/", s.submitTurn)
		r.Post("/retry", s.retryTurn)
		r.Post("/abort", s.abortTurn)
		r.Get("/status", s.chatStatus)
	})

	// Transcript snapshot
	r.Route("/transcript", func(r chi.Router) {
		r.Get("/", s.getTranscript)
		r.Delete("/", s.clearTranscript)
	})

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)

	// Event streaming (WebSocket)
	r.Get("/ws", s.eventSocket)
}
