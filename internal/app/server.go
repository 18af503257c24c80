package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/parley/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/parley/internal/api/middlewares"
	"github.com/markdave123-py/parley/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, svcs *Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, logger: logger}
}

// NewRouter returns the full route tree.
func NewRouter(cfg *config.Config, svcs *Services) http.Handler {
	authHandler := handlers.NewAuthHandler(svcs.Users)
	agentHandler := handlers.NewAgentHandler(svcs.Agents)
	sessionHandler := handlers.NewSessionHandler(svcs.Sessions)
	adminHandler := handlers.NewAdminHandler(svcs.Users, svcs.Settings, svcs.Webhooks)
	uploadHandler := handlers.NewUploadHandler(svcs.Uploads)
	webhookHandler := handlers.NewWebhookHandler(svcs.Webhooks, cfg.WebhookSignatureHeader)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)
		api.Get("/settings/public", adminHandler.PublicSettings)
		api.HandleFunc("/webhooks/elevenlabs", webhookHandler.Receive)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(svcs.Tokens))

			protected.Get("/agents", agentHandler.ListActive)

			protected.Post("/sessions/start", sessionHandler.Start)
			protected.Get("/sessions/my", sessionHandler.ListMine)
			protected.Get("/sessions/{id}", sessionHandler.Detail)
			protected.Patch("/sessions/{id}", sessionHandler.Rename)
			protected.Delete("/sessions/{id}", sessionHandler.Delete)
			protected.Patch("/sessions/{id}/notes", sessionHandler.SaveNotes)

			protected.Route("/admin", func(admin chi.Router) {
				admin.Use(appMiddleware.RequireAdmin(svcs.Users))

				admin.Get("/agents", agentHandler.ListAll)
				admin.Post("/agents", agentHandler.Create)
				admin.Get("/agents/{id}", agentHandler.Get)
				admin.Patch("/agents/{id}", agentHandler.Update)
				admin.Delete("/agents/{id}", agentHandler.Delete)

				admin.Get("/users", adminHandler.ListUsers)
				admin.Patch("/users", adminHandler.SetRole)

				admin.Get("/sessions", sessionHandler.AdminList)

				admin.Get("/settings", adminHandler.GetSettings)
				admin.Patch("/settings", adminHandler.UpdateSettings)

				admin.Get("/webhooks", adminHandler.ListWebhooks)

				admin.Post("/uploads/logo", uploadHandler.UploadLogo)
				admin.Post("/uploads/agent-thumbnail", uploadHandler.UploadThumbnail)
			})
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
