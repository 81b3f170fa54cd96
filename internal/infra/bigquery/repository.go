package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/ccd-tax-export/internal/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"google.golang.org/api/googleapi"
)

const (
	exportRunsTable = "export_runs"
	exportRowsTable = "export_rows"
)

// Re-export row types from the shared package.
type (
	ExportRunRow    = bq.ExportRunRow
	ExportRowRecord = bq.ExportRowRecord
	RunStats        = bq.RunStats
)

// BigQueryExportRepository is the concrete implementation of ExportRepository
// that interacts with BigQuery. It holds a shared client for all operations.
type BigQueryExportRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

var _ bq.ExportRepository = (*BigQueryExportRepository)(nil)

// NewBigQueryExportRepository creates a repository bound to projectID.datasetID.
func NewBigQueryExportRepository(ctx context.Context, projectID, datasetID string) (*BigQueryExportRepository, error) {
	if projectID == "" {
		return nil, errors.New("NewBigQueryExportRepository: project ID is required")
	}
	if datasetID == "" {
		return nil, errors.New("NewBigQueryExportRepository: dataset ID is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryExportRepository: creating client: %w", err)
	}
	return &BigQueryExportRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryExportRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTables creates the dataset and the export tables when they are missing.
// Schemas are inferred from the row structs so the two cannot drift apart.
func (r *BigQueryExportRepository) EnsureTables(ctx context.Context) error {
	log := logger.FromContext(ctx)

	dataset := r.client.DatasetInProject(r.projectID, r.datasetID)
	if _, err := dataset.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return fmt.Errorf("EnsureTables: reading dataset metadata: %w", err)
		}
		if err := dataset.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("EnsureTables: creating dataset %s: %w", r.datasetID, err)
		}
		log.Info().Str("dataset", r.datasetID).Msg("created dataset")
	}

	tables := []struct {
		name string
		row  interface{}
	}{
		{exportRunsTable, ExportRunRow{}},
		{exportRowsTable, ExportRowRecord{}},
	}
	for _, t := range tables {
		schema, err := bigquery.InferSchema(t.row)
		if err != nil {
			return fmt.Errorf("EnsureTables: inferring schema for %s: %w", t.name, err)
		}
		table := dataset.Table(t.name)
		if _, err := table.Metadata(ctx); err == nil {
			continue
		} else if !isNotFound(err) {
			return fmt.Errorf("EnsureTables: reading metadata for %s: %w", t.name, err)
		}
		if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("EnsureTables: creating table %s: %w", t.name, err)
		}
		log.Info().Str("table", t.name).Msg("created table")
	}
	return nil
}

// tableRef returns the fully qualified table name for use in SQL.
func (r *BigQueryExportRepository) tableRef(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, table)
}

// runDML runs a statement and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
