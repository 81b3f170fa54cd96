package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/ccd-tax-export/internal/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"google.golang.org/api/iterator"
)

// insertBatchSize keeps each streaming insert request well under the API payload limit.
const insertBatchSize = 500

// InsertExportRows streams the rows of an export run into export_rows.
// row_no records the position of each row so the export order can be rebuilt.
func (r *BigQueryExportRepository) InsertExportRows(ctx context.Context, runID string, rows []domain.ExportRow) error {
	if len(rows) == 0 {
		return nil
	}

	created := time.Now()
	records := make([]*ExportRowRecord, len(rows))
	for i, row := range rows {
		records[i] = bq.NewExportRowRecord(runID, i, row, created)
	}

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(exportRowsTable).Inserter()
	for start := 0; start < len(records); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := inserter.Put(ctx, records[start:end]); err != nil {
			return fmt.Errorf("InsertExportRows: inserting rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// QueryExportRowsByRun returns the rows of one export run ordered by row_no.
func (r *BigQueryExportRepository) QueryExportRowsByRun(ctx context.Context, runID string) ([]*ExportRowRecord, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			row_no,
			date,
			amount,
			currency,
			label,
			tx_hash,
			created_ts
		FROM %s
		WHERE run_id = @run_id
		ORDER BY row_no
	`, r.tableRef(exportRowsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryExportRowsByRun: reading query: %w", err)
	}

	var rows []*ExportRowRecord
	for {
		var row ExportRowRecord
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryExportRowsByRun: iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}
