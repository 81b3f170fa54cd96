package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/ccd-tax-export/internal/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const maxErrorMessageLen = 2000

// StartExportRun inserts a new row into export_runs with status=RUNNING
// and returns the generated run_id.
func (r *BigQueryExportRepository) StartExportRun(ctx context.Context, accounts []string) (string, error) {
	runID := uuid.NewString()

	q := r.client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			accounts,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@accounts,
			@started_ts,
			@status
		)
	`, r.tableRef(exportRunsTable)))

	if accounts == nil {
		accounts = []string{}
	}
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "accounts", Value: accounts},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: bq.RunStatusRunning},
	}

	if err := runDML(ctx, q, "StartExportRun"); err != nil {
		return "", err
	}
	return runID, nil
}

// MarkExportRunSucceeded sets status=SUCCESS, finished_ts and the run counters.
func (r *BigQueryExportRepository) MarkExportRunSucceeded(ctx context.Context, runID string, stats RunStats) error {
	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = NULL,
		    transactions_fetched = @transactions_fetched,
		    unique_transactions = @unique_transactions,
		    self_transfers_removed = @self_transfers_removed,
		    skipped = @skipped,
		    rows_exported = @rows_exported,
		    failed_accounts = @failed_accounts
		WHERE run_id = @run_id
	`, r.tableRef(exportRunsTable)))

	failed := stats.FailedAccounts
	if failed == nil {
		failed = []string{}
	}
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "transactions_fetched", Value: stats.TransactionsFetched},
		{Name: "unique_transactions", Value: stats.UniqueTransactions},
		{Name: "self_transfers_removed", Value: stats.SelfTransfersRemoved},
		{Name: "skipped", Value: stats.Skipped},
		{Name: "rows_exported", Value: stats.RowsExported},
		{Name: "failed_accounts", Value: failed},
		{Name: "run_id", Value: runID},
	}

	return runDML(ctx, q, "MarkExportRunSucceeded")
}

// MarkExportRunFailed sets status=FAILED, finished_ts and error_message.
// Failures are logged, the caller is already on an error path.
func (r *BigQueryExportRepository) MarkExportRunFailed(ctx context.Context, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if len(errMsg) > maxErrorMessageLen {
			errMsg = errMsg[:maxErrorMessageLen]
		}
	}

	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, r.tableRef(exportRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q, "MarkExportRunFailed"); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkExportRunFailed: updating run")
	}
}

// ListExportRuns returns the most recent export runs, newest first.
func (r *BigQueryExportRepository) ListExportRuns(ctx context.Context, limit int) ([]*ExportRunRow, error) {
	if limit <= 0 {
		limit = 50
	}

	q := r.client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			accounts,
			started_ts,
			finished_ts,
			status,
			error_message,
			transactions_fetched,
			unique_transactions,
			self_transfers_removed,
			skipped,
			rows_exported,
			failed_accounts
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, r.tableRef(exportRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListExportRuns: reading query: %w", err)
	}

	var runs []*ExportRunRow
	for {
		var row ExportRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExportRuns: iterating: %w", err)
		}
		runs = append(runs, &row)
	}
	return runs, nil
}
