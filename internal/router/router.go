package router

import (
	"net/http"

	"mnemosyne-api/internal/handler"
	"mnemosyne-api/internal/metrics"
	"mnemosyne-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	AuthHandler    *handler.AuthHandler
	PostHandler    *handler.PostHandler
	ProfileHandler *handler.ProfileHandler
	AdminHandler   *handler.AdminHandler

	AuthMiddleware  func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler
	RateLimiter     *middleware.RateLimiter

	Metrics  *metrics.Registry
	Gatherer prometheus.Gatherer
	Logger   *zap.SugaredLogger

	AllowedOrigins []string
	// TrustProxy enables RealIP, which the rate limiter then keys on.
	TrustProxy bool

	// AvatarDir is served under /avatars/ when avatars are stored locally.
	AvatarDir string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.NewRecovery(log))
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLogging(log))
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetrics(cfg.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Token", "X-Admin-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.AvatarDir != "" {
		fileServer := http.FileServer(http.Dir(cfg.AvatarDir))
		r.Handle("/avatars/*", http.StripPrefix("/avatars/", fileServer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Handler)
		}

		// Health check endpoints
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		// Admin endpoints
		if cfg.AdminHandler != nil && cfg.AdminMiddleware != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(cfg.AdminMiddleware)
				r.Get("/cache", cfg.AdminHandler.GetCache)
				r.Delete("/cache", cfg.AdminHandler.ClearCache)
			})
		}

		// Everything below may carry a session token.
		r.Group(func(r chi.Router) {
			if cfg.AuthMiddleware != nil {
				r.Use(cfg.AuthMiddleware)
			}

			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/signup", cfg.AuthHandler.Signup)
					r.Post("/login", cfg.AuthHandler.Login)
					r.With(middleware.RequireAuth).Post("/logout", cfg.AuthHandler.Logout)
					r.With(middleware.RequireAuth).Post("/refresh", cfg.AuthHandler.Refresh)
				})
			}

			if cfg.PostHandler != nil {
				r.Route("/posts", func(r chi.Router) {
					r.Get("/", cfg.PostHandler.List)
					r.With(middleware.RequireAuth).Post("/", cfg.PostHandler.Create)

					r.Route("/{postID}", func(r chi.Router) {
						r.Get("/", cfg.PostHandler.Get)

						r.Group(func(r chi.Router) {
							r.Use(middleware.RequireAuth)
							r.Delete("/", cfg.PostHandler.Delete)
							r.Put("/like", cfg.PostHandler.Like)
							r.Delete("/like", cfg.PostHandler.Unlike)
						})
					})
				})
			}

			r.Route("/users/{userID}", func(r chi.Router) {
				if cfg.ProfileHandler != nil {
					r.Get("/profile", cfg.ProfileHandler.Get)
				}
				if cfg.PostHandler != nil {
					r.Get("/posts", cfg.PostHandler.ListByUser)
				}
			})

			if cfg.ProfileHandler != nil {
				r.Route("/me", func(r chi.Router) {
					r.Use(middleware.RequireAuth)
					r.Get("/", cfg.ProfileHandler.Me)
					r.Put("/", cfg.ProfileHandler.UpdateMe)
					r.Put("/avatar", cfg.ProfileHandler.UploadAvatar)
				})
			}
		})
	})

	return r
}
