package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"gamenight/internal/config"
	"gamenight/internal/handler"
	"gamenight/internal/middleware"
	"gamenight/internal/reconcile"
	"gamenight/internal/repository"
	"gamenight/internal/store"
	"gamenight/pkg/database"
	"gamenight/pkg/logger"
	"gamenight/pkg/redis"
)

// Resources holds all resources that need cleanup
type Resources struct {
	db          *database.PostgresDB
	redisClient *redis.Client
	sessions    *reconcile.Manager
	server      *http.Server
	log         *logger.Logger
	mu          sync.Mutex
	closed      bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
	}

	// Tear down availability sessions and their subscriptions
	if r.sessions != nil {
		r.sessions.Shutdown()
		r.log.Info("Availability sessions closed")
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close Redis connection")
			errs = append(errs, fmt.Errorf("Redis close: %w", err))
		}
	}

	if r.db != nil {
		r.db.Close()
		r.log.Info("Database connection pool closed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Starting gamenight server")

	ctx := context.Background()

	// Initialize database connection
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize Redis connection
	redisClient, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}

	// Wire repositories, store and session manager
	eventRepo := repository.NewEventRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	eventStore := store.NewEventStore(eventRepo, responseRepo, redisClient, log.Logger)
	sessions := reconcile.NewManager(eventStore, cfg.GuardWindow, cfg.SessionIdleTTL, log.Logger)

	// Setup router
	router := setupRouter(cfg, log.Logger, db, redisClient, eventStore, sessions)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   0, // watch endpoints hold the response open
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Create resources manager for cleanup
	resources := &Resources{
		db:          db,
		redisClient: redisClient,
		sessions:    sessions,
		server:      server,
		log:         log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(cfg *config.Config, log *zap.Logger, db *database.PostgresDB, redisClient *redis.Client, eventStore *store.EventStore, sessions *reconcile.Manager) *chi.Mux {
	r := chi.NewRouter()

	corsConfig := &middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID())
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))

	// Create handlers
	healthHandler := handler.NewHealthHandler(db, redisClient, log)
	eventHandler := handler.NewEventHandler(eventStore, cfg.BestSlotLimit, log)
	availabilityHandler := handler.NewAvailabilityHandler(sessions, cfg.BestSlotLimit, log)
	watchHandler := handler.NewWatchHandler(eventStore, log)

	// Health check
	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.Post("/", eventHandler.Create)
			r.Get("/watch", watchHandler.WatchActiveEvents)

			r.Route("/{eventID}", func(r chi.Router) {
				// Mutating endpoints get a timeout; watch streams do not.
				r.Group(func(r chi.Router) {
					r.Use(chiMiddleware.Timeout(60 * time.Second))

					r.Get("/", eventHandler.Get)
					r.Post("/complete", eventHandler.Complete)
					r.Post("/archive", eventHandler.Archive)
					r.Post("/slots", eventHandler.AddSlots)
					r.Get("/responses", eventHandler.Responses)
					r.Post("/responses", eventHandler.SubmitResponse)
					r.Get("/best-slots", eventHandler.BestSlots)

					r.Get("/availability", availabilityHandler.View)
					r.Post("/availability/toggle", availabilityHandler.Toggle)
					r.Post("/availability/save", availabilityHandler.Save)
					r.Delete("/availability", availabilityHandler.CloseSession)
				})

				r.Get("/watch", watchHandler.WatchEvent)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Endpoint not found"}`))
	})

	log.Info("Router configured successfully")
	return r
}
