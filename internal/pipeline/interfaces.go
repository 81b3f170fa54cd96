package pipeline

import (
	"context"

	bq "github.com/dvloznov/ccd-tax-export/internal/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/walletproxy"
)

// Fetcher retrieves pages of an account's transaction history.
type Fetcher = walletproxy.PageFetcher

// Uploader stores an export file and returns its URI.
type Uploader interface {
	UploadBytes(ctx context.Context, bucketName, objectName, contentType string, data []byte) (string, error)
}

// ExportStore records export runs and their rows.
// This is the subset of bq.ExportRepository the pipeline writes to.
type ExportStore interface {
	StartExportRun(ctx context.Context, accounts []string) (string, error)
	InsertExportRows(ctx context.Context, runID string, rows []domain.ExportRow) error
	MarkExportRunSucceeded(ctx context.Context, runID string, stats bq.RunStats) error
	MarkExportRunFailed(ctx context.Context, runID string, runErr error)
}
