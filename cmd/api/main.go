package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"researchflow-backend/cmd"
	"researchflow-backend/internal/api"
	"researchflow-backend/internal/chat"
	"researchflow-backend/internal/database"
	"researchflow-backend/internal/ingest"
	"researchflow-backend/internal/settings"
	"researchflow-backend/internal/storage"
	"researchflow-backend/internal/workflow"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"data/researchflow.db"`
	MarkdownDir string `env:"MARKDOWN_DIR" envDefault:"data/converted_markdown"`
	APIPort     string `env:"API_PORT" envDefault:"8001"`
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

	appSettings, err := settings.Load(db)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	current := appSettings.Get()

	wfClient := workflow.NewClient(current.APIURL, current.APIKey)

	markdownStore, err := storage.NewMarkdownStore(cfg.MarkdownDir)
	if err != nil {
		log.Fatalf("Failed to create markdown store: %v", err)
	}

	chatService := chat.NewService(db, wfClient, appSettings)
	ingestor := ingest.NewIngestor(db, wfClient, markdownStore, appSettings)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Workflow runs are slow; the request timeout must outlast the remote
	// call budget.
	r.Use(middleware.Timeout(200 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", api.RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	api.NewChatService(db, chatService, ingestor, appSettings).AddRoutes(r)
	api.NewSettingsService(db, appSettings, wfClient).AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

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
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
