// Package api assembles the HTTP router for the Papermill action service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/papermill-ai/papermill/internal/api/handlers"
	"github.com/papermill-ai/papermill/internal/api/middleware"
	"github.com/papermill-ai/papermill/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	r.Route("/api/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Delete("/", h.DropSession)

		// Inbound streamed events
		r.Post("/events/actions", h.IngestActions)
		r.Post("/events/approval", h.IngestApprovalRequest)

		// Actions
		r.Route("/actions", func(r chi.Router) {
			r.Get("/", h.ListActions)
			r.Post("/ack", h.AcknowledgeActions)
			r.Post("/apply", h.ApplyActions)
			r.Post("/undo", h.UndoActions)
			r.Route("/{actionID}", func(r chi.Router) {
				r.Get("/", h.GetAction)
				r.Post("/reject", h.RejectAction)
				r.Post("/undo-edit", h.UndoEdit)
			})
		})

		// Deferred approvals
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", h.ListApprovals)
			r.Post("/{actionID}/respond", h.RespondApproval)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"version": cfg.Version})
	}
}
