package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voxhall/tts-api/internal/api"
	apiMiddleware "github.com/voxhall/tts-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.manager, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Local single-user deployments run without auth; shared
		// deployments gate everything behind bearer tokens.
		if app.config.Auth.Enabled {
			authMiddleware := apiMiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret)
			r.Use(authMiddleware.Authenticate)
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.SubmitTask)
			r.Get("/", taskHandler.ListTasks)
			r.Get("/progress", taskHandler.GetAllProgress)
			r.Post("/cleanup", taskHandler.CleanupTasks)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Delete("/", taskHandler.CancelTask)
				r.Get("/progress", taskHandler.GetProgress)
				r.Get("/console", taskHandler.GetConsole)
				r.Get("/result", taskHandler.GetResult)
				r.Get("/download", taskHandler.DownloadResult)
			})
		})

		r.Get("/results", taskHandler.ListResults)
		r.Get("/stats", taskHandler.GetStats)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
