package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/shopspring/decimal"
)

// Export run statuses.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// ExportRepository provides an interface for export-run related database operations.
type ExportRepository interface {
	// StartExportRun inserts a new export run with status=RUNNING and returns the run_id.
	StartExportRun(ctx context.Context, accounts []string) (string, error)

	// InsertExportRows inserts the rows produced by an export run, keeping their order.
	InsertExportRows(ctx context.Context, runID string, rows []domain.ExportRow) error

	// MarkExportRunSucceeded sets status=SUCCESS, finished_ts and the run counters.
	MarkExportRunSucceeded(ctx context.Context, runID string, stats RunStats) error

	// MarkExportRunFailed sets status=FAILED, finished_ts and error_message for an export run.
	MarkExportRunFailed(ctx context.Context, runID string, runErr error)

	// ListExportRuns returns the most recent export runs, newest first.
	ListExportRuns(ctx context.Context, limit int) ([]*ExportRunRow, error)

	// QueryExportRowsByRun returns the rows of one export run in export order.
	QueryExportRowsByRun(ctx context.Context, runID string) ([]*ExportRowRecord, error)
}

// RunStats are the counters recorded on a finished export run.
type RunStats struct {
	TransactionsFetched  int
	UniqueTransactions   int
	SelfTransfersRemoved int
	Skipped              int
	RowsExported         int
	FailedAccounts       []string
}

// ExportRunRow represents an export run record in BigQuery.
type ExportRunRow struct {
	RunID    string   `bigquery:"run_id" json:"run_id"`
	Accounts []string `bigquery:"accounts" json:"accounts"`

	StartedTS  time.Time              `bigquery:"started_ts" json:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts" json:"finished_ts"`

	Status       string              `bigquery:"status" json:"status"`
	ErrorMessage bigquery.NullString `bigquery:"error_message" json:"error_message"`

	TransactionsFetched  bigquery.NullInt64 `bigquery:"transactions_fetched" json:"transactions_fetched"`
	UniqueTransactions   bigquery.NullInt64 `bigquery:"unique_transactions" json:"unique_transactions"`
	SelfTransfersRemoved bigquery.NullInt64 `bigquery:"self_transfers_removed" json:"self_transfers_removed"`
	Skipped              bigquery.NullInt64 `bigquery:"skipped" json:"skipped"`
	RowsExported         bigquery.NullInt64 `bigquery:"rows_exported" json:"rows_exported"`

	FailedAccounts []string `bigquery:"failed_accounts" json:"failed_accounts"`
}

// ExportRowRecord represents one exported row in BigQuery.
type ExportRowRecord struct {
	RunID string `bigquery:"run_id" json:"run_id"`
	RowNo int64  `bigquery:"row_no" json:"row_no"`

	Date     string   `bigquery:"date" json:"date"`
	Amount   *big.Rat `bigquery:"amount" json:"amount"`
	Currency string   `bigquery:"currency" json:"currency"`

	Label  bigquery.NullString `bigquery:"label" json:"label,omitempty"`
	TxHash bigquery.NullString `bigquery:"tx_hash" json:"tx_hash,omitempty"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// NewExportRowRecord converts an export row into its BigQuery representation.
func NewExportRowRecord(runID string, rowNo int, row domain.ExportRow, created time.Time) *ExportRowRecord {
	return &ExportRowRecord{
		RunID:     runID,
		RowNo:     int64(rowNo),
		Date:      row.Date,
		Amount:    row.Amount.Rat(),
		Currency:  row.Currency,
		Label:     bigquery.NullString{StringVal: string(row.Label), Valid: row.Label != domain.LabelNone},
		TxHash:    bigquery.NullString{StringVal: row.TxHash, Valid: row.TxHash != ""},
		CreatedTS: created,
	}
}

// ExportRow converts the record back into a domain export row.
func (r *ExportRowRecord) ExportRow() (domain.ExportRow, error) {
	amount, err := ratToDecimal(r.Amount)
	if err != nil {
		return domain.ExportRow{}, fmt.Errorf("ExportRow: row %d of run %s: %w", r.RowNo, r.RunID, err)
	}
	return domain.ExportRow{
		Date:     r.Date,
		Amount:   amount,
		Currency: r.Currency,
		Label:    domain.Label(r.Label.StringVal),
		TxHash:   r.TxHash.StringVal,
	}, nil
}

// MarshalJSON customizes JSON serialization for ExportRowRecord.
func (r ExportRowRecord) MarshalJSON() ([]byte, error) {
	type Alias ExportRowRecord
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Label  string `json:"label,omitempty"`
		TxHash string `json:"tx_hash,omitempty"`
		*Alias
	}{
		Amount: func() string {
			d, err := ratToDecimal(r.Amount)
			if err != nil {
				return r.Amount.FloatString(-domain.MicroCCDExponent)
			}
			return d.String()
		}(),
		Label:  r.Label.StringVal,
		TxHash: r.TxHash.StringVal,
		Alias:  (*Alias)(&r),
	})
}

// ratToDecimal converts a NUMERIC value at microCCD precision.
func ratToDecimal(v *big.Rat) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v.FloatString(-domain.MicroCCDExponent))
}
