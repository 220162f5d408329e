package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hanwei-dev/VeoBridge/internal/config"
)

// NewRouter assembles the full route tree. The worker socket and health/file
// endpoints are open; the OpenAI surface and admin routes sit behind the
// static bearer key. No write timeout middleware is mounted: blocking
// completions and SSE streams legitimately outlive any fixed budget.
func NewRouter(h *Handlers, workerSocket http.Handler, cfg config.Config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(CORS(cfg.Server.CORSOrigin))

	r.Get("/health", h.Health)
	r.Get("/files/{taskID}", h.GetFile)
	r.Handle("/ws", workerSocket)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.Auth.APIKey))

		r.Post("/v1/chat/completions", h.ChatCompletions)
		r.Get("/v1/models", h.ListModels)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/tasks", h.ListTasks)
			r.Delete("/tasks", h.ClearTasks)
			r.Post("/tasks/{taskID}/retry", h.RetryTask)
			r.Post("/tasks/retry-failed", h.RetryAllFailed)
			r.Post("/dispatch/start", h.StartDispatch)
			r.Post("/dispatch/stop", h.StopDispatch)
		})
	})

	return r
}
