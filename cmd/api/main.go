package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ccd-tax-export/internal/api/handlers"
	"github.com/dvloznov/ccd-tax-export/internal/api/middleware"
	"github.com/dvloznov/ccd-tax-export/internal/config"
	"github.com/dvloznov/ccd-tax-export/internal/gcsuploader"
	infraBQ "github.com/dvloznov/ccd-tax-export/internal/infra/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/jobs"
	"github.com/dvloznov/ccd-tax-export/internal/jobs/inmemory"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"github.com/dvloznov/ccd-tax-export/internal/pipeline"
	"github.com/dvloznov/ccd-tax-export/internal/walletproxy"
)

func main() {
	cfg := config.Load()

	// Parse command-line flags
	var (
		port    = flag.String("port", cfg.Port, "HTTP server port")
		bucket  = flag.String("bucket", cfg.GCSBucket, "GCS bucket for exported CSV files (or set GCS_BUCKET env)")
		project = flag.String("project", cfg.GCPProject, "GCP project for BigQuery run history (or set GCP_PROJECT env)")
		dataset = flag.String("dataset", cfg.BQDataset, "BigQuery dataset")
		workers = flag.Int("workers", inmemory.DefaultWorkerCount, "Export jobs processed in parallel")
	)
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	deps := pipeline.Deps{
		Fetcher: walletproxy.NewClient(cfg.WalletProxyURL, cfg.HTTPTimeout),
	}
	opts := jobs.ExportOptions{
		PageSize:    cfg.PageSize,
		Concurrency: cfg.FetchConcurrency,
	}

	if *bucket == "" {
		log.Warn().Msg("No GCS bucket configured - exports will not be uploaded")
	} else {
		deps.Uploader = gcsuploader.NewGCSStorageService()
		opts.GCSBucket = *bucket
	}

	var runsHandler *handlers.RunsHandler
	if *project == "" {
		log.Warn().Msg("No GCP project configured - export runs will not be stored in BigQuery")
	} else {
		repo, err := infraBQ.NewBigQueryExportRepository(ctx, *project, *dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create export repository")
		}
		defer repo.Close()

		if err := repo.EnsureTables(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare BigQuery tables")
		}
		deps.Store = repo
		opts.StoreBigQuery = true
		runsHandler = handlers.NewRunsHandler(repo)
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", *workers).Msg("Starting export workers")
	if err := jobQueue.Start(workerCtx, jobs.NewExportHandler(deps, opts)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start export workers")
	}

	mux := http.NewServeMux()
	handlers.Register(mux, handlers.NewExportsHandler(jobQueue, jobStore), runsHandler)

	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID(log),
		middleware.Logger(log),
		middleware.CORS,
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight exports finish, then stop the workers.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
