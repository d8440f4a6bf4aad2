package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/aggregator"
	"github.com/skypath/nichebot/internal/classifier"
	"github.com/skypath/nichebot/internal/config"
	"github.com/skypath/nichebot/internal/discovery"
	"github.com/skypath/nichebot/internal/models"
	"github.com/skypath/nichebot/internal/notifications"
	"github.com/skypath/nichebot/internal/providers"
	"github.com/skypath/nichebot/internal/scheduler"
	"github.com/skypath/nichebot/internal/storage"
	"github.com/skypath/nichebot/internal/verification"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting niche discovery bot")

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Archiving is optional; without a storage account the pipeline simply
	// skips the snapshot step.
	var archiver storage.Archiver
	if cfg.StorageAccount != "" {
		blobArchiver, err := storage.NewBlobArchiver(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize archive storage: %v", err)
		}
		archiver = blobArchiver
	}

	registry := providers.NewRegistry()
	register := func(p providers.Provider) {
		if err := registry.Register(p); err != nil {
			logrus.Fatalf("Failed to register provider: %v", err)
		}
	}
	register(providers.NewRedditProvider(cfg.RedditClientID, cfg.RedditClientSecret))
	register(providers.NewHackerNewsProvider())
	register(providers.NewStackOverflowProvider())
	register(providers.NewYouTubeProvider(cfg.YouTubeAPIKey))

	collector := aggregator.New(registry, cfg.StableProviders, 4)

	analyzer := classifier.NewClient(
		cfg.ClassifierAPIKey,
		cfg.ClassifierBaseURL,
		cfg.ClassifierTier,
		cfg.BatchSize,
		time.Duration(cfg.BatchDelaySecs)*time.Second,
	)

	discoveryService := discovery.NewService(store, collector, analyzer, archiver, cfg.Owner, cfg.FetchLimit)

	verifier := verification.NewClient(cfg.VerificationURL, cfg.VerificationAPIKey)
	notifier := notifications.NewService(cfg)

	schedulerService := scheduler.NewService(cfg, discoveryService, store, verifier, notifier, archiver)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/stats", statsHandler(schedulerService)).Methods("GET")
	router.HandleFunc("/runs/{id}", runHandler(store)).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(cfg, discoveryService)).Methods("POST")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func statsHandler(schedulerService *scheduler.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(schedulerService.Stats().JSON()))
	}
}

func runHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		run, err := store.GetSearchRun(r.Context(), id)
		if err != nil {
			http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	}
}

type triggerRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

func triggerHandler(cfg *config.Config, discoveryService *discovery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
			return
		}
		mode := req.Mode
		if mode == "" {
			mode = cfg.Mode
		}
		if !models.ValidMode(mode) {
			http.Error(w, `{"error":"invalid mode"}`, http.StatusBadRequest)
			return
		}

		providerNames := append(append([]string{}, cfg.StableProviders...), cfg.OptionalProviders...)
		go func() {
			if _, err := discoveryService.Run(context.Background(), req.Query, mode, providerNames); err != nil {
				logrus.Errorf("Manual discovery trigger failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"Discovery run triggered"}`))
	}
}
