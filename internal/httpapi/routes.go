package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchcam/backend/pkg/metrics"
)

// SetupRoutes wires the REST handlers, the Prometheus endpoint, and the
// realtime websocket entrypoint onto one router.
func SetupRoutes(api *API, wsHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Get("/", MetricsMiddleware(api.Root, "/"))
	r.Get("/health", MetricsMiddleware(api.Health, "/health"))
	r.Get("/game/status", MetricsMiddleware(api.GameStatus, "/game/status"))
	r.Post("/game/reset", MetricsMiddleware(api.ResetGame, "/game/reset"))
	r.Post("/pose/detect", MetricsMiddleware(api.DetectPose, "/pose/detect"))

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, req)
	})

	r.Get("/ws/game", wsHandler)

	return r
}
