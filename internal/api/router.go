package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func NewRouter(apiHandler *APIHandler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(Metrics) // first, so every request is counted
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)

	r.Handle("/metrics", promhttp.Handler())

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Route("/projects/{projectID}/chats", func(r chi.Router) {
				r.Get("/", apiHandler.ListChatsHandler)
				r.Post("/", apiHandler.CreateChatHandler)

				r.Route("/{chatID}", func(r chi.Router) {
					r.Get("/", apiHandler.GetChatDetailsHandler)
					r.Delete("/", apiHandler.DeleteChatHandler)
					r.Patch("/visibility", apiHandler.UpdateVisibilityHandler)
					r.Post("/messages", apiHandler.SaveMessagesHandler)
					r.Get("/votes", apiHandler.GetVotesHandler)
					r.Patch("/votes", apiHandler.VoteHandler)
					r.Get("/export", apiHandler.ExportHandler)
				})
			})
		})
	})

	return r
}
