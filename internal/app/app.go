package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sokoni/backend/features/catalog"
	"sokoni/backend/features/job"
	"sokoni/backend/features/search"
	"sokoni/backend/features/stats"
	"sokoni/backend/internal/adapter/gemini"
	"sokoni/backend/internal/adapter/qc"
	"sokoni/backend/internal/adapter/storage"
	"sokoni/backend/internal/adapter/vision"
	"sokoni/backend/internal/config"
	"sokoni/backend/internal/embedding"
	"sokoni/backend/internal/hydrator"
	"sokoni/backend/internal/middleware"
	"sokoni/backend/internal/pipeline"
	"sokoni/backend/internal/scout"
	"sokoni/backend/internal/similar"
	"sokoni/backend/internal/synclog"
	"sokoni/backend/internal/vector"
)

// Database is the minimal surface App needs from the SQL layer. Repositories
// still require a concrete *sql.DB underneath.
type Database interface {
	PingContext(ctx context.Context) error
}

// VectorIndex is the full index surface App wires: the write/search core plus
// the lookups the query and stats features need.
type VectorIndex interface {
	vector.Index
	GetVector(ctx context.Context, itemID string) ([]float32, error)
	Count(ctx context.Context) (int, error)
}

type App struct {
	Handler          http.Handler
	CatalogService   *catalog.Service
	SyncConsumer     *pipeline.SyncConsumer
	DecisionConsumer *pipeline.DecisionConsumer

	port int
}

func New(
	cfg *config.Config,
	db Database,
	index VectorIndex,
	taskPub catalog.TaskPublisher,
	logger *slog.Logger,
) (*App, error) {
	sqlDB := db.(*sql.DB)

	// Sync event log backs every pipeline stage and the audit endpoint.
	eventLog := synclog.NewPostgresRepo(sqlDB)

	// Feature: Catalog
	catalogRepo := catalog.NewPostgresRepo(sqlDB)
	catalogService := catalog.NewService(catalogRepo, taskPub, eventLog)
	catalogHandler := catalog.NewHandler(catalogService)

	// External capability adapters. A missing URL or key leaves the adapter
	// nil and the pipeline degrades per stage.
	var visual embedding.VisualExtractor
	if cfg.VisionURL != "" {
		visual = vision.NewClient(cfg.VisionURL)
	}

	var text embedding.TextExtractor
	if cfg.GeminiAPIKey != "" {
		embedder, err := gemini.NewEmbedder(context.Background(), cfg.GeminiAPIKey)
		if err != nil {
			slog.Warn("gemini embedder unavailable, falling back to deterministic text vectors", "error", err)
		} else {
			text = embedder
		}
	}

	fetchTimeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	httpClient := &http.Client{Timeout: fetchTimeout}

	engine := embedding.NewEngine(embedding.Config{
		VisualWeight: float32(cfg.VisualWeight),
		TextWeight:   float32(cfg.TextWeight),
		BatchSize:    cfg.EmbedBatchSize,
		FetchTimeout: fetchTimeout,
	}, visual, text, httpClient, eventLog)

	// Pipeline stages
	catalogScout := scout.New(httpClient, eventLog)
	itemHydrator := hydrator.New(hydrator.Config{
		Concurrency: cfg.HydrateConcurrency,
		Timeout:     fetchTimeout,
		MaxRetries:  cfg.HydrateMaxRetries,
		BackoffBase: time.Duration(cfg.HydrateBackoffMS) * time.Millisecond,
	}, httpClient, eventLog)

	gate := qc.NewClient(cfg.QCURL)
	objectStore := storage.NewClient(cfg.StorageURL)
	promoter := pipeline.NewImagePromoter(objectStore, httpClient, fetchTimeout)

	// Feature: Job (parked promotions)
	jobRepo := job.NewPostgresRepo(sqlDB)
	jobService := job.NewService(jobRepo, promoter, catalogRepo)
	jobHandler := job.NewHandler(jobService)

	orchestrator := pipeline.NewOrchestrator(
		catalogScout,
		itemHydrator,
		engine,
		gate,
		promoter,
		index,
		catalogRepo,
		jobRepo,
		eventLog,
		cfg.CatalogParallelism,
	)
	syncConsumer := pipeline.NewSyncConsumer(orchestrator)
	decisionConsumer := pipeline.NewDecisionConsumer(orchestrator, catalogRepo)

	// Feature: Stats
	statsHandler := stats.NewHandler(catalogRepo, jobRepo, index)

	// Feature: Search
	queryLogger, err := similar.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = similar.NewQueryLogger(os.Stdout)
	}
	similarService := similar.NewService(index, engine, catalogRepo, queryLogger)
	searchHandler := search.NewHandler(similarService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /catalogs/sync", middleware.CorrelationID(enableCORS(catalogHandler.Sync)))
	mux.Handle("GET /products/{id}", middleware.CorrelationID(enableCORS(catalogHandler.GetProduct)))
	mux.Handle("GET /products/{id}/similar", middleware.CorrelationID(enableCORS(searchHandler.Similar)))
	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	mux.Handle("GET /events", middleware.CorrelationID(enableCORS(catalogHandler.ListEvents)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:          mux,
		CatalogService:   catalogService,
		SyncConsumer:     syncConsumer,
		DecisionConsumer: decisionConsumer,
		port:             cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
