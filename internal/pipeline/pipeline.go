package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	bq "github.com/dvloznov/ccd-tax-export/internal/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
)

// Request describes one export run.
type Request struct {
	Accounts    []string
	PageSize    int
	Concurrency int

	// Optional sinks. A zero value disables the sink.
	CSVOut        io.Writer
	GCSBucket     string
	GCSObject     string
	StoreBigQuery bool
}

// Deps are the collaborators an export run talks to.
type Deps struct {
	Fetcher  Fetcher
	Uploader Uploader
	Store    ExportStore
}

// Result summarizes a finished (or partially finished) export run.
type Result struct {
	Accounts     []string
	Transactions []domain.Transaction
	Rows         []domain.ExportRow

	TransactionsFetched  int
	PagesFetched         int
	UniqueTransactions   int
	SelfTransfersRemoved int
	Skipped              map[string]int
	AccountErrors        map[string]error

	RunID  string
	GCSURI string
}

// FailedAccounts returns the accounts that could not be fetched, sorted.
func (r *Result) FailedAccounts() []string {
	failed := make([]string, 0, len(r.AccountErrors))
	for a := range r.AccountErrors {
		failed = append(failed, a)
	}
	sort.Strings(failed)
	return failed
}

// SkippedTotal is the number of transactions that produced no rows.
func (r *Result) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// Summary renders the run counters on one line.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "accounts=%d failed=%d pages=%d fetched=%d unique=%d self_transfers_removed=%d skipped=%d rows=%d",
		len(r.Accounts), len(r.AccountErrors), r.PagesFetched, r.TransactionsFetched,
		r.UniqueTransactions, r.SelfTransfersRemoved, r.SkippedTotal(), len(r.Rows))

	reasons := make([]string, 0, len(r.Skipped))
	for reason := range r.Skipped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(&b, " skipped_%s=%d", reason, r.Skipped[reason])
	}
	if r.RunID != "" {
		fmt.Fprintf(&b, " run_id=%s", r.RunID)
	}
	if r.GCSURI != "" {
		fmt.Fprintf(&b, " uri=%s", r.GCSURI)
	}
	return b.String()
}

// RunStats converts the state counters into the record stored with a run.
func (s *PipelineState) RunStats() bq.RunStats {
	return bq.RunStats{
		TransactionsFetched:  s.TransactionsFetched,
		UniqueTransactions:   s.Ledger.Len(),
		SelfTransfersRemoved: s.SelfTransfersRemoved,
		Skipped:              s.SkippedTotal(),
		RowsExported:         len(s.Rows),
		FailedAccounts:       s.FailedAccounts(),
	}
}

func (s *PipelineState) result() *Result {
	return &Result{
		Accounts:             s.Accounts,
		Transactions:         s.Transactions,
		Rows:                 s.Rows,
		TransactionsFetched:  s.TransactionsFetched,
		PagesFetched:         s.PagesFetched,
		UniqueTransactions:   s.Ledger.Len(),
		SelfTransfersRemoved: s.SelfTransfersRemoved,
		Skipped:              s.Skipped,
		AccountErrors:        s.AccountErrors,
		RunID:                s.RunID,
		GCSURI:               s.GCSURI,
	}
}

// NewExportPipeline assembles fetch, filter and transform followed by the
// sinks enabled in req.
func NewExportPipeline(req Request, deps Deps) (*Pipeline, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("NewExportPipeline: fetcher is required")
	}

	steps := []PipelineStep{
		&FetchLedgerStep{Fetcher: deps.Fetcher, PageSize: req.PageSize, Concurrency: req.Concurrency},
		&FilterSelfTransfersStep{},
		&TransformRowsStep{},
	}
	if req.CSVOut != nil {
		steps = append(steps, &WriteCSVStep{W: req.CSVOut})
	}
	if req.GCSBucket != "" {
		if deps.Uploader == nil {
			return nil, errors.New("NewExportPipeline: GCS bucket set without an uploader")
		}
		if req.GCSObject == "" {
			return nil, errors.New("NewExportPipeline: GCS bucket set without an object name")
		}
		steps = append(steps, &UploadCSVStep{Uploader: deps.Uploader, Bucket: req.GCSBucket, Object: req.GCSObject})
	}
	if req.StoreBigQuery {
		if deps.Store == nil {
			return nil, errors.New("NewExportPipeline: BigQuery storage requested without a store")
		}
		steps = append(steps, &StoreBigQueryStep{Store: deps.Store})
	}
	return NewPipeline(steps...), nil
}

// NewLedgerPipeline fetches and filters without producing rows.
func NewLedgerPipeline(req Request, deps Deps) (*Pipeline, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("NewLedgerPipeline: fetcher is required")
	}
	return NewPipeline(
		&FetchLedgerStep{Fetcher: deps.Fetcher, PageSize: req.PageSize, Concurrency: req.Concurrency},
		&FilterSelfTransfersStep{},
	), nil
}

// Run executes a full export. The returned Result is never nil and holds
// whatever the run produced before an error stopped it.
func Run(ctx context.Context, req Request, deps Deps) (*Result, error) {
	return run(ctx, req, deps, NewExportPipeline)
}

// Ledger fetches the deduplicated, self-transfer free ledger for req.Accounts.
func Ledger(ctx context.Context, req Request, deps Deps) (*Result, error) {
	return run(ctx, req, deps, NewLedgerPipeline)
}

func run(ctx context.Context, req Request, deps Deps, build func(Request, Deps) (*Pipeline, error)) (*Result, error) {
	state := NewPipelineState(req.Accounts)

	p, err := build(req, deps)
	if err != nil {
		return state.result(), err
	}

	log := logger.FromContext(ctx)
	log.Info().Strs("accounts", state.Accounts).Msg("export started")

	err = p.Execute(ctx, state)
	res := state.result()
	if err != nil {
		log.Error().Err(err).Str("summary", res.Summary()).Msg("export failed")
		return res, err
	}
	log.Info().Str("summary", res.Summary()).Msg("export finished")
	return res, nil
}
