package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Unhandled panics become a logged 500 instead of a crash
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Local account surface. The gate is client-side: routes are not
		// token-protected, matching the in-browser credential check.
		r.Post("/register", apiHandler.RegisterHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Post("/logout", apiHandler.LogoutHandler)
		r.Get("/auth", apiHandler.AuthStateHandler)

		// Remote-service configuration
		r.Get("/config", apiHandler.GetConfigHandler)
		r.Post("/config", apiHandler.SaveConfigHandler)

		// Session store
		r.Get("/sessions", apiHandler.ListSessionsHandler)
		r.Post("/sessions", apiHandler.CreateSessionHandler)
		r.Delete("/sessions/{sessionID}", apiHandler.DeleteSessionHandler)
		r.Patch("/sessions/{sessionID}", apiHandler.RenameSessionHandler)
		r.Post("/sessions/{sessionID}/select", apiHandler.SelectSessionHandler)

		// Message exchange
		r.Post("/messages", apiHandler.SendMessageHandler)

		// Prompt snippets
		r.Get("/commands", apiHandler.ListCommandsHandler)
		r.Post("/commands", apiHandler.RecordCommandHandler)

		// Diagnostics
		r.Get("/logs", apiHandler.LogsHandler)
	})

	return r
}
