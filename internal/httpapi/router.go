package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"brandhub/backend/internal/config"
)

func NewRouter(cfg config.Config, deps Dependencies) http.Handler {
	h := NewHandler(cfg, deps)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/research", func(rr chi.Router) {
		rr.Post("/", h.Research)
		rr.Post("/upload", h.UploadResearch)
		rr.Post("/classify", h.Classify)
		rr.Post("/estimate", h.Estimate)
		rr.Get("/sessions", h.ListSessions)
		rr.Get("/sessions/{sessionID}", h.GetSession)
	})

	return r
}
