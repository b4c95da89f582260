package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/health", g.handleHealth())

	api := func(r chi.Router) {
		r.Get("/status", g.handleStatus())
		r.Get("/ws/events", g.handleEvents())

		r.Route("/api", func(r chi.Router) {
			r.Get("/conversations", g.handleListConversations())
			r.Get("/conversations/{id}", g.handleGetConversation())
			r.Patch("/conversations/{id}", g.handlePatchConversation())
			r.Delete("/conversations/{id}", g.handleDeleteConversation())

			r.Post("/conversations/{id}/fork", g.handleFork())
			r.Post("/conversations/{id}/continue", g.handleContinue())
			r.Get("/conversations/{id}/links", g.handleLinks())
			r.Get("/conversations/{id}/related", g.handleRelated())
			r.Get("/conversations/{id}/path", g.handlePath())
			r.Get("/conversations/{id}/graph", g.handleGraph())
			r.Post("/conversations/{id}/context", g.handleAssemble())
			r.Get("/conversations/{id}/context/config", g.handleGetContextConfig())
			r.Put("/conversations/{id}/context/config", g.handlePutContextConfig())

			r.Get("/graph", g.handleGraph())
			r.Post("/links", g.handleReference())
			r.Delete("/links/{id}", g.handleDeleteLink())
		})
	}

	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth))
			api(r)
		})
	} else {
		// Loopback default bind; auth is opt-in.
		r.Group(api)
	}

	return r
}
