package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"STORM_VISION/internal/auth"
	"STORM_VISION/internal/config"
	"STORM_VISION/internal/database"
	"STORM_VISION/internal/handlers"
	"STORM_VISION/internal/ingest"
	"STORM_VISION/internal/pipeline"
	"STORM_VISION/internal/services"
	"STORM_VISION/internal/session"
	"STORM_VISION/internal/store"
)

var httpServer *http.Server

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	modelURL := flag.String("model-url", "", "Model service URL (overrides MODEL_SERVICE_URL)")
	dbPath := flag.String("db-path", "", "SQLite path (overrides DB_PATH)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}
	if *modelURL != "" {
		cfg.ModelServiceURL = *modelURL
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	log.Println("Starting...")
	log.Printf("HTTP port: %s", cfg.HTTPPort)
	log.Printf("Model service: %s", cfg.ModelServiceURL)
	log.Printf("Environment: %s", cfg.Environment)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Хранилище учётных записей: SQLite, при сбое — память
	var credStore store.CredentialStore
	if err := database.InitDB(cfg.DBPath); err != nil {
		log.Printf("SQLite unavailable: %v", err)
		log.Println("Continuing with in-memory credential store")
		credStore = store.NewMemoryStore()
	} else {
		defer database.CloseDB()
		credStore = store.NewSQLiteStore(database.DB)
	}

	if err := auth.SeedAdmin(context.Background(), credStore, cfg.AdminUser, cfg.AdminPassword); err != nil {
		log.Printf("Failed to seed admin user: %v", err)
	}

	// Подключение к сервису моделей
	var (
		restorer    pipeline.Restorer
		detector    pipeline.Detector
		segmenter   pipeline.Segmenter
		modelHealth func() error
	)
	modelClient := services.NewModelClient(cfg.ModelServiceURL, cfg.ModelTimeout())
	if err := modelClient.CheckHealth(); err != nil {
		log.Printf("Model service unavailable: %v", err)
		log.Println("Continuing with stub models (for testing)")
		stub := services.NewStubModel()
		restorer, detector, segmenter = stub, stub, stub
	} else {
		restorer, detector, segmenter = modelClient, modelClient, modelClient
		modelHealth = modelClient.CheckHealth
	}

	metrics := services.GetMetrics()
	hub := handlers.NewHub(metrics)

	handler := handlers.NewHandler(handlers.Options{
		Gate:           auth.NewGate(credStore),
		Sessions:       session.NewStore(),
		Ingestor:       ingest.New(cfg.MaxUploadBytes()),
		Orchestrator:   pipeline.New(restorer, detector, segmenter, cfg.ModelTimeout()),
		Metrics:        metrics,
		Hub:            hub,
		MaxUploadFiles: cfg.MaxUploadFiles,
		CORSOrigin:     cfg.CORSOrigins,
		ModelHealth:    modelHealth,
	})

	log.Println("Starting HTTP server...")
	go startHTTPServer(cfg.HTTPPort, handler)

	// Ждём сигнала
	<-done
	log.Println("Shutting down...")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		log.Println("Stopping HTTP server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down HTTP server: %v", err)
		} else {
			log.Println("HTTP server gracefully stopped")
		}
	}

	log.Println("Closing WebSocket connections...")
	hub.CloseAll()
	log.Println("All WebSocket connections closed...")

	log.Println("Goodbye!")
}

func startHTTPServer(port string, handler *handlers.Handler) {
	if len(port) > 0 && port[0] == ':' {
		port = port[1:]
	}

	mux := http.NewServeMux()
	handler.Routes(mux)

	httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      handler.CORS(mux),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("HTTP server listening on port %s", port)
	log.Printf("WebSocket:  ws://localhost:%s/ws", port)
	log.Printf("REST API:   http://localhost:%s/api/*", port)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to serve HTTP: %v", err)
	}
}
