package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/ccd-tax-export/internal/config"
	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/export"
	"github.com/dvloznov/ccd-tax-export/internal/gcs"
	"github.com/dvloznov/ccd-tax-export/internal/gcsuploader"
	"github.com/dvloznov/ccd-tax-export/internal/infra/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"github.com/dvloznov/ccd-tax-export/internal/notionsync"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)

	// Parse CLI flags
	runID := flag.String("run-id", "", "Export run stored in BigQuery to sync")
	csvPath := flag.String("csv", "", "Exported CSV to sync (local path or gs:// URI)")
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID (or set NOTION_DATABASE_ID env)")
	project := flag.String("project", cfg.GCPProject, "GCP project for BigQuery")
	dataset := flag.String("dataset", cfg.BQDataset, "BigQuery dataset")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	// Validate required flags
	if (*runID == "") == (*csvPath == "") {
		log.Fatal().Msg("Error: exactly one of --run-id or --csv is required")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var (
		rows []domain.ExportRow
		err  error
	)
	if *runID != "" {
		rows, err = rowsFromBigQuery(ctx, *project, *dataset, *runID)
	} else {
		rows, err = rowsFromCSV(ctx, gcsuploader.NewGCSStorageService(), *csvPath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load export rows")
	}

	log.Info().
		Str("run_id", *runID).
		Str("csv", *csvPath).
		Int("rows", len(rows)).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	notionClient := notionsync.NewNotionClient(*notionToken)

	stats, err := notionsync.SyncExportRows(ctx, notionClient, *notionDBID, rows, *runID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: total=%d created=%d existing=%d failed=%d\n",
		stats.Total, stats.Created, stats.Existing, stats.Failed)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}

func rowsFromBigQuery(ctx context.Context, project, dataset, runID string) ([]domain.ExportRow, error) {
	repo, err := bigquery.NewBigQueryExportRepository(ctx, project, dataset)
	if err != nil {
		return nil, fmt.Errorf("rowsFromBigQuery: %w", err)
	}
	defer repo.Close()

	records, err := repo.QueryExportRowsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("rowsFromBigQuery: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("rowsFromBigQuery: run %s has no rows", runID)
	}

	rows := make([]domain.ExportRow, 0, len(records))
	for _, rec := range records {
		row, err := rec.ExportRow()
		if err != nil {
			return nil, fmt.Errorf("rowsFromBigQuery: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func rowsFromCSV(ctx context.Context, storage gcs.StorageService, path string) ([]domain.ExportRow, error) {
	var r io.Reader
	if strings.HasPrefix(path, "gs://") {
		data, err := storage.FetchFromGCS(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("rowsFromCSV: %w", err)
		}
		r = bytes.NewReader(data)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("rowsFromCSV: %w", err)
		}
		defer f.Close()
		r = f
	}

	rows, err := export.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("rowsFromCSV: %s: %w", path, err)
	}
	return rows, nil
}
