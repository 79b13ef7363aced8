package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, hc *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/dispatch", h.Dispatch)
		r.Get("/workers/stats", h.WorkerStats)

		r.Route("/leads/{id}", func(r chi.Router) {
			r.Post("/enrich", h.Enrich)
			r.Get("/audit", h.LeadAuditTrail)
		})

		r.Get("/clients/{clientID}/resources", h.ListResources)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/leads/{id}/clear-suppression", h.ClearSuppression)
			r.Post("/leads/{id}/force-unblock", h.ForceUnblock)
			r.Post("/resources", h.RegisterResource)
			r.Post("/resources/{id}/health", h.SetResourceHealth)
		})
	})

	return r
}

// requestLogger logs one line per request through the project logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := timeNow()
		next.ServeHTTP(ww, r)
		log.Info("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"bytes", ww.BytesWritten(), "duration_ms", timeNow().Sub(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
