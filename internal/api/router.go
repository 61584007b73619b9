package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/accessguard-core/internal/auth"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/ws-ticket", s.handleWSTicket)

			r.With(s.requirePermission(auth.PermSystemRead)).Get("/status", s.handleStatus)

			r.Route("/cards", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermCardRead)).Get("/", s.handleListCards)
				r.With(s.requirePermission(auth.PermCardManage)).Post("/", s.handleAddCard)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermCardRead)).Get("/", s.handleGetCard)
					r.With(s.requirePermission(auth.PermCardManage)).Delete("/", s.handleRemoveCard)
				})
			})

			r.With(s.requirePermission(auth.PermCardRead)).Get("/logs", s.handleListLogs)
			r.With(s.requirePermission(auth.PermEventRead)).Get("/events", s.handleListEvents)
			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAudit)

			r.Route("/backups", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermBackupRead))
					r.Get("/", s.handleListBackups)
					r.Get("/latest", s.handleLatestBackup)
					r.Get("/status", s.handleBackupStatus)
					r.Get("/{id}/validate", s.handleValidateBackup)
				})
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermBackupManage))
					r.Post("/", s.handleCreateBackup)
					r.Post("/cleanup", s.handleCleanupBackups)
					r.Post("/restore-file", s.handleRestoreFromFile)
					r.Post("/{id}/restore", s.handleRestoreBackup)
				})
			})
		})
	})

	return r
}
