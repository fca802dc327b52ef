package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/api"
	"github.com/cloo-solutions/coverstats/internal/api/handlers"
	"github.com/cloo-solutions/coverstats/internal/api/middleware"
	"github.com/cloo-solutions/coverstats/internal/metrics"
)

type RouterConfig struct {
	// AuthValidator guards the data routes. Nil leaves them open.
	AuthValidator    middleware.AuthValidator
	EntryHandler     *handlers.EntryHandler
	WatermarkHandler *handlers.WatermarkHandler
	Logger           *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.AuthValidator != nil {
			r.Use(middleware.TokenAuth(cfg.AuthValidator))
		}

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", cfg.EntryHandler.List)
			r.Get("/{id}", cfg.EntryHandler.Get)
		})
		r.Get("/watermarks", cfg.WatermarkHandler.List)
	})

	return r
}
