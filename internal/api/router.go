package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/auth"
	"github.com/lalithlochan/clipforge/internal/circuitbreaker"
	"github.com/lalithlochan/clipforge/internal/metrics"
	"github.com/lalithlochan/clipforge/internal/redis"
)

// RouterConfig wires the gateway's HTTP surface.
type RouterConfig struct {
	Handler  *Handler
	Issuer   *auth.Issuer
	Limiter  *redis.RateLimiter // nil disables rate limiting
	Breakers []*circuitbreaker.CircuitBreaker
	Logger   *zap.Logger

	// RequestTimeout bounds every route except the chat reveal.
	RequestTimeout time.Duration
}

// NewRouter mounts /api placeholders, the authenticated /v1 API, the
// provider callback, /health and /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	h := cfg.Handler

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(RequestLogger(cfg.Logger))

	r.Mount("/api", PlaceholderRoutes())

	r.Route("/v1", func(r chi.Router) {
		// Providers authenticate with the callback secret, not a user token.
		r.With(middleware.Timeout(cfg.RequestTimeout)).Post("/jobs/{id}/callback", h.JobCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.Issuer, cfg.Logger))
			r.Use(RateLimitMiddleware(cfg.Limiter, cfg.Logger, UserKeyFunc))

			r.Post("/chat", h.Chat)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(cfg.RequestTimeout))

				r.Post("/jobs", h.CreateJob)
				r.Get("/jobs", h.ListJobs)
				r.Get("/jobs/{id}", h.GetJob)

				r.Get("/notifications", h.ListNotifications)
				r.Delete("/notifications", h.ClearNotifications)
				r.Post("/notifications/read-all", h.MarkAllNotificationsRead)
				r.Post("/notifications/{id}/read", h.MarkNotificationRead)
				r.Delete("/notifications/{id}", h.DeleteNotification)

				r.Post("/uploads", h.CreateUpload)
			})
		})
	})

	r.Get("/health", healthHandler(cfg.Breakers))
	r.Handle("/metrics", metrics.Handler())

	return r
}

func healthHandler(breakers []*circuitbreaker.CircuitBreaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := make([]circuitbreaker.Stats, 0, len(breakers))
		status := "ok"
		for _, cb := range breakers {
			s := cb.Stats()
			if s.State != circuitbreaker.StateClosed.String() {
				status = "degraded"
			}
			stats = append(stats, s)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   status,
			"breakers": stats,
		})
	}
}
