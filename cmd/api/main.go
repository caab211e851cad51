package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tagger-backend/cmd"
	"tagger-backend/internal/api"
	"tagger-backend/internal/config"
	"tagger-backend/internal/core"
	"tagger-backend/internal/database"
	"tagger-backend/internal/llm"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL     string `env:"DATABASE_URL" envDefault:"sqlite://./data/tagger.db"`
	LanguagesConfig string `env:"LANGUAGES_CONFIG" envDefault:"./configs/languages.yaml"`
	CacheBucket     string `env:"CACHE_BUCKET" envDefault:"tag-cache"`
	Storage         cmd.StorageConfig
	APIPort         string `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	resolver, err := config.NewResolver(cfg.LanguagesConfig)
	if err != nil {
		log.Fatalf("Failed to load language registry: %v", err)
	}

	provider, err := cmd.NewStorageProvider(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage provider: %v", err)
	}

	extractor := core.NewExtractor(resolver, provider, cfg.CacheBucket, llm.NewClient)

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},                                       // Allow all origins (TODO: make this an env var)
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, // Allow all HTTP methods
		AllowedHeaders:   []string{"*"},                                       // Allow all headers
		ExposedHeaders:   []string{"*"},                                       // Expose all headers
		AllowCredentials: true,                                                // Allow cookies/auth headers
		MaxAge:           300,                                                 // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	// API Handlers (dependency injection)
	service := api.NewTaggingService(db, resolver, extractor)

	r.Route("/api/v1", func(r chi.Router) {
		service.AddRoutes(r)
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		// Write out any cache entries still buffered in memory.
		if err := extractor.Close(ctx); err != nil {
			log.Printf("error flushing response caches: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
