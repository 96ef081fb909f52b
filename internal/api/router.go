package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-fx/internal/auth"
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
		// Unauthenticated monitoring
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/effects", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermEffectRead)).Get("/", s.handleListEffects)
				r.With(s.requirePermission(auth.PermEffectRead)).Get("/catalog", s.handleListCatalog)
				r.With(s.requirePermission(auth.PermEffectRead)).Get("/events", s.handleListEvents)
				r.With(s.requirePermission(auth.PermSystemDump)).Get("/dump", s.handleDump)
				r.With(s.requirePermission(auth.PermEffectControl)).Post("/", s.handleCreateEffect)

				r.Route("/handles", func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermEffectControl))
					r.Get("/", s.handleListHandles)
					r.Put("/{id}/enabled", s.handleSetHandleEnabled)
					r.Delete("/{id}", s.handleDisconnectHandle)
				})
			})

			r.Route("/patches", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermPatchRead)).Get("/", s.handleListPatches)
				r.With(s.requirePermission(auth.PermPatchManage)).Post("/", s.handleCreatePatch)
				r.With(s.requirePermission(auth.PermPatchManage)).Delete("/{id}", s.handleReleasePatch)
			})

			r.With(s.requirePermission(auth.PermEffectRead)).Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
