package api

import (
	"log"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"guard.share/config"
	"guard.share/internal/notify"
	"guard.share/internal/security"
	"guard.share/internal/store"
)

func SetupRouter(engine *security.Engine, shares store.Store, notifier notify.Sender, cfg *config.Config, logger *log.Logger) *chi.Mux {
	h := NewHandler(engine, shares, notifier, cfg, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health
	r.Get("/health", h.Health)

	// API routes. Rate limiting, blacklist checks, and auditing live in
	// the engine, not in middleware: every decision must leave exactly
	// one audit entry regardless of transport.
	r.Route("/api", func(r chi.Router) {
		r.Use(JSONOnly)

		r.Route("/shares", func(r chi.Router) {
			r.Post("/", h.CreateShare)
			r.Get("/{token}", h.ViewShare)
			r.Get("/{token}/download", h.DownloadShare)
			r.Get("/{token}/status", h.GetStatus)
			r.Delete("/{token}", h.RevokeShare)
			r.Patch("/{token}/permission", h.UpdatePermission)
		})

		r.Get("/analytics", h.GetAnalytics)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/blacklist", h.BlacklistIP)
			r.Delete("/blacklist/{origin}", h.UnblacklistIP)
			r.Post("/clear", h.ClearSecurityState)
		})
	})

	return r
}
