package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"otp-guard/internal/util"
)

// RouterConfig holds the transport concerns of the HTTP surface.
type RouterConfig struct {
	RequireHTTPS      bool
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string
	HealthCheck func(ctx context.Context) error
}

// requireHTTPS rejects any request that wasn't made over TLS.
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired)
			_, _ = w.Write([]byte(`{"success":false,"error":"https_required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter wires middleware and routes. adminHandler may be nil, in which
// case the admin routes are not mounted.
func NewRouter(cfg RouterConfig, authHandler *AuthHandler, adminHandler *AdminHandler, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if cfg.RequireHTTPS {
		router.Use(requireHTTPS)
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", adminTokenHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler(cfg.HealthCheck, logger))
	if cfg.MetricsPath != "" {
		router.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.RateLimitRequests > 0 {
				r.Use(httprate.Limit(
					cfg.RateLimitRequests,
					cfg.RateLimitWindow,
					httprate.WithKeyFuncs(httprate.KeyByRealIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						respondWithError(w, logger, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please slow down")
					}),
				))
			}
			authHandler.RegisterRoutes(r)
		})
		if adminHandler != nil {
			adminHandler.RegisterRoutes(r)
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, logger, http.StatusNotFound, "not_found", "endpoint not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, logger, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return router
}

func healthHandler(check func(ctx context.Context) error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				logger.Warn("Health check failed", util.ErrorField(err))
				respondWithJSON(w, logger, http.StatusServiceUnavailable, map[string]string{
					"status":  "unhealthy",
					"service": "otp-guard",
				})
				return
			}
		}
		respondWithJSON(w, logger, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "otp-guard",
		})
	}
}

// LoggerMiddleware logs every HTTP request once it completes.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
