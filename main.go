package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"neighborly/internal/ai"
	"neighborly/internal/config"
	"neighborly/internal/engine"
	"neighborly/internal/handlers"
	"neighborly/internal/index"
	"neighborly/internal/logging"
	"neighborly/internal/middleware"
	"neighborly/internal/notify"
	"neighborly/internal/qa"
	"neighborly/internal/refresh"
	"neighborly/internal/session"
	"neighborly/internal/store"
	"neighborly/internal/summary"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type serviceBundle struct {
	Store          store.Store
	Engine         *engine.Engine
	ContentHandler *handlers.ContentHandler
	QueryHandler   *handlers.QueryHandler
	Config         *config.Config
}

func initializeServices(cfg *config.Config) (*serviceBundle, error) {
	slog.Info("Initializing services...")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	contentStore, err := store.NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	var idx index.Index
	if strings.ToLower(cfg.IndexBackend) == "memory" {
		idx = index.NewMemoryIndex()
	} else {
		idx, err = index.NewPgvectorIndex(db)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	openaiClient := ai.NewOpenAIClient(cfg.OpenAIAPIKey)

	coordinator := refresh.NewCoordinator(contentStore, idx, openaiClient)
	summaries := summary.NewCache(contentStore, openaiClient, cfg.SummaryWordThreshold)
	sessions := session.NewStore()
	qaEngine := qa.NewEngine(openaiClient, openaiClient, idx, contentStore, sessions, qa.Options{
		RetrievalK:    cfg.RetrievalK,
		HistoryTurns:  cfg.HistoryTurns,
		MaxChunkChars: cfg.MaxChunkChars,
	})
	notifier := notify.NewSlackNotifier(cfg.SlackWebhookURL)

	eng := engine.New(contentStore, coordinator, qaEngine, summaries, notifier)

	slog.Info("All services initialized successfully",
		slog.String("index_backend", cfg.IndexBackend))

	return &serviceBundle{
		Store:          contentStore,
		Engine:         eng,
		ContentHandler: handlers.NewContentHandler(contentStore, eng),
		QueryHandler:   handlers.NewQueryHandler(eng),
		Config:         cfg,
	}, nil
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logging.SetupLogger()

	slog.Info("Starting Neighborly answer engine", slog.String("version", "1.0.0"))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	services, err := initializeServices(cfg)
	if err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer services.Store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The index starts empty and is rebuilt from the content store.
	go func() {
		if err := services.Engine.Rebuild(ctx); err != nil {
			slog.Error("Startup index rebuild failed", "error", err)
		}
	}()

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.MetricsMiddleware)

	apiRouter := router.PathPrefix("/api").Subrouter()

	queryRouter := apiRouter.NewRoute().Subrouter()
	queryRouter.Use(middleware.QueryRateLimitMiddleware())
	queryRouter.HandleFunc("/ask", services.QueryHandler.HandleAsk).Methods("POST")
	queryRouter.HandleFunc("/content/{id}/summary", services.QueryHandler.HandleSummary).Methods("GET")

	mutationRouter := apiRouter.NewRoute().Subrouter()
	mutationRouter.Use(middleware.MutationRateLimitMiddleware())
	mutationRouter.HandleFunc("/posts", services.ContentHandler.HandleCreatePost).Methods("POST")
	mutationRouter.HandleFunc("/posts/{id}", services.ContentHandler.HandleEdit).Methods("PUT")
	mutationRouter.HandleFunc("/posts/{id}", services.ContentHandler.HandleDelete).Methods("DELETE")
	mutationRouter.HandleFunc("/help-requests", services.ContentHandler.HandleCreateHelpRequest).Methods("POST")
	mutationRouter.HandleFunc("/help-requests/{id}", services.ContentHandler.HandleEdit).Methods("PUT")
	mutationRouter.HandleFunc("/help-requests/{id}", services.ContentHandler.HandleDelete).Methods("DELETE")
	mutationRouter.HandleFunc("/help-requests/{id}/volunteer", services.ContentHandler.HandleVolunteer).Methods("POST")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         ":" + services.Config.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Server starting", slog.String("port", services.Config.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	cancel()

	// Let any in-flight index refresh finish before closing the store.
	services.Engine.Drain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited gracefully")
}
