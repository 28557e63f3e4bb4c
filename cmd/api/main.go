package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mnemosyne-api/internal/cache"
	"mnemosyne-api/internal/config"
	"mnemosyne-api/internal/handler"
	"mnemosyne-api/internal/logging"
	"mnemosyne-api/internal/metrics"
	"mnemosyne-api/internal/middleware"
	"mnemosyne-api/internal/repository"
	"mnemosyne-api/internal/router"
	"mnemosyne-api/internal/service"
	"mnemosyne-api/internal/session"
	"mnemosyne-api/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	log := logging.Must(cfg.App.Environment, cfg.App.Debug)
	defer log.Sync()

	log.Infow("starting server", "service", cfg.App.Name, "version", cfg.App.Version, "environment", cfg.App.Environment)

	store, err := openStore(cfg, log.Named("store"))
	if err != nil {
		log.Fatalw("failed to initialize store", "type", cfg.Store.Type, "error", err)
	}
	defer store.Close()
	log.Infow("store initialized", "type", cfg.Store.Type)

	// Sessions live in Redis when it is reachable, otherwise in process.
	var sessionStore session.Store
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warnw("redis unavailable, keeping sessions in memory", "addr", cfg.Redis.Address(), "error", err)
			redisClient.Close()
		} else {
			defer redisClient.Close()
			sessionStore = session.NewRedisStore(redisClient)
			log.Infow("redis session store initialized", "addr", cfg.Redis.Address())
		}
		cancel()
	}
	if sessionStore == nil {
		sessionStore = session.NewMemoryStore(time.Minute)
	}

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		secret = randomSecret()
		log.Warnw("AUTH_JWT_SECRET not set, sessions will not survive a restart")
	}

	objects, avatarDir, err := openObjectStore(cfg)
	if err != nil {
		log.Fatalw("failed to initialize avatar storage", "type", cfg.Storage.Type, "error", err)
	}

	registry := metrics.NewRegistry(prometheus.DefaultRegisterer)

	cacheStore := cache.NewStore(
		cache.WithDefaultTTL(cfg.Cache.TTL),
		cache.WithStaleWindow(cfg.Cache.StaleWindow),
		cache.WithObserver(metrics.NewCacheObserver(registry)),
	)

	// Initialize services
	data := service.NewDataService(service.DataConfig{
		Repo:              store,
		Cache:             cacheStore,
		Objects:           objects,
		Metrics:           registry,
		Logger:            log.Named("data"),
		RevalidateTimeout: cfg.Cache.RevalidateTimeout,
	})

	sessions := session.NewManager(secret, cfg.Auth.SessionTTL, sessionStore, log.Named("session"))
	auth := service.NewAuthService(store, sessions, data, log.Named("auth"))

	if cfg.Auth.AdminKey == "" {
		log.Warnw("ADMIN_KEY not set, admin endpoints are disabled")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL,
			Metrics: registry,
		})
	}

	// Create router
	r := router.New(router.Config{
		Handler:        handler.New(cfg.App.Name, cfg.App.Version, store),
		AuthHandler:    handler.NewAuthHandler(auth),
		PostHandler:    handler.NewPostHandler(data),
		ProfileHandler: handler.NewProfileHandler(data),
		AdminHandler:   handler.NewAdminHandler(data, store, cfg.Store.Type),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			Authenticator: auth,
			Logger:        log.Named("auth"),
		}),
		AdminMiddleware: middleware.NewAdminMiddleware(cfg.Auth.AdminKey),
		RateLimiter:     limiter,
		Metrics:         registry,
		Gatherer:        prometheus.DefaultGatherer,
		Logger:          log.Named("http"),
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		TrustProxy:      cfg.Server.TrustProxy,
		AvatarDir:       avatarDir,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infow("server listening", "addr", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server shutdown error", "error", err)
	}

	// Let background refreshes finish before the store closes.
	data.WaitIdle()

	log.Infow("server stopped")
}

func openStore(cfg *config.Config, log *zap.SugaredLogger) (repository.Store, error) {
	switch cfg.Store.Type {
	case "mongodb", "mongo":
		return repository.NewMongoStore(cfg.Store.MongoURI, cfg.Store.MongoDatabase, log)
	case "postgres", "postgresql":
		return repository.NewPostgresStore(cfg.Store.PostgresDSN(), log)
	case "mysql":
		return repository.NewMySQLStore(cfg.Store.MySQLDSN(), log)
	default: // sqlite
		return repository.NewSQLiteStore(cfg.Store.Path, log)
	}
}

// openObjectStore returns the avatar store and, for local storage, the
// directory the router should serve.
func openObjectStore(cfg *config.Config) (storage.ObjectStore, string, error) {
	if cfg.Storage.Type == "s3" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.Storage.Bucket,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			PublicURL:    cfg.Storage.PublicURL,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
		return s3Store, "", err
	}

	local, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Server.PublicURL+"/avatars")
	if err != nil {
		return nil, "", err
	}
	return local, local.Dir(), nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return []byte(hex.EncodeToString(buf))
}
