package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shelterstat/analysis"
	"shelterstat/api"
	"shelterstat/config"
	"shelterstat/database"
	"shelterstat/etl"
	"shelterstat/jobs"
	"shelterstat/logger"
	"shelterstat/mart"
)

func main() {
	fmt.Println("=== shelterstat - Telecom Shelter Inspection Dashboard ===")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Open(logger.Config{
		Level:      cfg.Log.Level,
		Directory:  cfg.Log.Directory,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Stdout:     cfg.Log.Stdout,
	}); err != nil {
		fmt.Printf("Failed to open log files: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Configuration loaded")

	// Initialize databases
	db, err := database.Initialize(cfg.DBPath, cfg.AppDBPath)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	// Initialize worker pool
	workerPool := jobs.NewWorkerPool(cfg.WorkerPoolSize)
	defer workerPool.Stop()
	logger.Infof("Worker pool started with %d workers", cfg.WorkerPoolSize)

	analyzer := analysis.NewAnalyzer(repo, repo, workerPool,
		api.EngineOptions(cfg.Engine), cfg.CacheTTLHours, cfg.Analysis.MaxRecords)
	martBuilder := mart.NewMartBuilder(db, repo, analyzer.Options)
	ingestor := etl.NewDataIngestor(cfg, repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler := etl.NewScheduler(cfg, ingestor, martBuilder, repo)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	handler := api.NewHandler(db, repo, cfg, martBuilder, analyzer, ingestor)
	router := api.SetupRouter(handler)
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware())

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Streaming dashboards may take longer than a plain request.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("API server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited")
}
