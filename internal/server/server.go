// Package server is the local HTTP control surface a UI process uses to
// drive the sync client and read its state.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func NewRouter(server *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/healthz", server.Health)
	if server.metrics != nil {
		r.Handle("/metrics", server.metrics.Handler())
	}
	if server.hub != nil {
		// Compress would wrap the response writer and break the upgrade.
		r.Get("/ws", server.hub.ServeHTTP)
	}

	r.Group(func(apiRouter chi.Router) {
		apiRouter.Use(middleware.Compress(5))

		apiRouter.Get("/status", server.Status)

		apiRouter.Get("/comments", server.ListComments)
		apiRouter.Post("/comments", server.SubmitComment)
		apiRouter.Get("/draft", server.GetDraft)
		apiRouter.Put("/draft", server.SetDraft)

		apiRouter.Get("/activity", server.GetActivity)
		apiRouter.Patch("/activity", server.EditActivity)

		apiRouter.Post("/refresh", server.Refresh)
		apiRouter.Post("/lifecycle", server.SetLifecycle)
		apiRouter.Put("/session", server.SetSession)
		apiRouter.Delete("/session", server.ClearSession)
		apiRouter.Put("/modal", server.SetModal)
		apiRouter.Put("/voting-view", server.SetVotingView)
	})

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("requestID", middleware.GetReqID(r.Context())),
			)
			next.ServeHTTP(w, r)
		})
	}
}
