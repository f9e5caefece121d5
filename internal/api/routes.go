package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matiasleandrokruk/llmhub/internal/api/handlers"
	apimiddleware "github.com/matiasleandrokruk/llmhub/internal/api/middleware"
	"github.com/matiasleandrokruk/llmhub/internal/app"
)

// NewRouter mounts the public routes (/health, /auth/*) and the JWT-protected
// /api/v1 routes on a chi router.
func NewRouter(a *app.App) *chi.Mux {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.Health)

	authHandler := handlers.NewAuthHandler(a.Auth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	providerHandler := handlers.NewProviderHandler(a.Providers)
	modelHandler := handlers.NewModelHandler(a.Catalog)
	conversationHandler := handlers.NewConversationHandler(a.Chat, a.Orchestrator, logger)
	settingsHandler := handlers.NewSettingsHandler(a.Settings)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apimiddleware.Auth(a.Tokens))
		r.Use(apimiddleware.Audit(a.Audit))

		r.Get("/providers", providerHandler.ListProviders)

		r.Route("/models", func(r chi.Router) {
			r.Get("/", modelHandler.ListModels)
			r.Put("/{id}", modelHandler.UpdateModel)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.CreateConversation)
			r.Get("/", conversationHandler.ListConversations)
			r.Get("/{id}", conversationHandler.GetConversation)
			r.Put("/{id}", conversationHandler.RenameConversation)
			r.Delete("/{id}", conversationHandler.DeleteConversation)
			r.Get("/{id}/messages", conversationHandler.ListMessages)
			r.Post("/{id}/messages", conversationHandler.SendMessage)
			r.Get("/{id}/export", conversationHandler.ExportConversation)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/api-keys", settingsHandler.GetAPIKeys)
			r.Put("/api-keys", settingsHandler.PutAPIKeys)
			r.Get("/models/{provider}/*", settingsHandler.GetModelSettings)
			r.Put("/models/{provider}/*", settingsHandler.PutModelSettings)
		})
	})

	return r
}
