package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"relaygate-gateway/internal/handlers"
	"relaygate-gateway/internal/metrics"
	"relaygate-gateway/internal/middleware"
)

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, streamHandler *handlers.StreamHandler) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())             // panic recovery
	r.Use(middleware.MaxBodySize(512 * 1024)) // 512 KB max body

	// routes
	r.Route("/v1", func(r chi.Router) {
		// The stream route carries its own upstream deadline; the timeout
		// middleware would kill long healthy streams.
		r.Post("/agent/stream", streamHandler.AgentStream)
	})

	// health check
	r.With(middleware.Timeout(5 * time.Second)).Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
