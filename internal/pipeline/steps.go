package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/export"
	"github.com/dvloznov/ccd-tax-export/internal/gcsuploader"
	"github.com/dvloznov/ccd-tax-export/internal/ledger"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"github.com/dvloznov/ccd-tax-export/internal/walletproxy"
	"golang.org/x/sync/errgroup"
)

// ErrAllAccountsFailed is returned when no requested account could be fetched.
var ErrAllAccountsFailed = errors.New("every account failed to fetch")

// PipelineStep represents a single step in the export pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Accounts []string

	Ledger       *ledger.Accumulator
	Transactions []domain.Transaction
	Rows         []domain.ExportRow

	TransactionsFetched  int
	PagesFetched         int
	SelfTransfersRemoved int
	Skipped              map[string]int
	AccountErrors        map[string]error

	RunID  string
	GCSURI string

	mu sync.Mutex
}

// NewPipelineState prepares state for the given accounts. Duplicate and
// empty account identifiers are dropped, first occurrence order is kept.
func NewPipelineState(accounts []string) *PipelineState {
	seen := make(map[string]struct{}, len(accounts))
	unique := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		unique = append(unique, a)
	}
	return &PipelineState{
		Accounts:      unique,
		Ledger:        ledger.NewAccumulator(),
		Skipped:       make(map[string]int),
		AccountErrors: make(map[string]error),
	}
}

// FailedAccounts returns the accounts that could not be fetched, sorted.
func (s *PipelineState) FailedAccounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make([]string, 0, len(s.AccountErrors))
	for a := range s.AccountErrors {
		failed = append(failed, a)
	}
	sort.Strings(failed)
	return failed
}

// SkippedTotal is the number of transactions that produced no rows.
func (s *PipelineState) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// Step 1: FetchLedgerStep pages through every account into the shared ledger.
// Accounts run concurrently, pagination within an account is sequential.
type FetchLedgerStep struct {
	Fetcher     Fetcher
	PageSize    int
	Concurrency int
}

func (s *FetchLedgerStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, account := range state.Accounts {
		account := account
		g.Go(func() error {
			actx := logger.WithAccount(ctx, account)
			alog := logger.FromContext(actx)
			fetched := 0
			pages, err := walletproxy.FetchAll(actx, s.Fetcher, account, s.PageSize, func(page []domain.Transaction) {
				fetched += len(page)
				state.Ledger.Merge(page)
			})

			state.mu.Lock()
			state.PagesFetched += pages
			state.TransactionsFetched += fetched
			if err != nil {
				state.AccountErrors[account] = err
			}
			state.mu.Unlock()

			if err != nil {
				alog.Error().Err(err).Msg("account fetch failed, continuing with remaining accounts")
				return nil
			}
			alog.Info().
				Int("pages", pages).
				Int("transactions", fetched).
				Msg("account fetched")
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("accounts", len(state.Accounts)).
		Int("failed_accounts", len(state.AccountErrors)).
		Int("unique_transactions", state.Ledger.Len()).
		Msg("ledger assembled")

	if len(state.Accounts) > 0 && len(state.AccountErrors) == len(state.Accounts) {
		errs := make([]error, 0, len(state.AccountErrors))
		for _, a := range state.FailedAccounts() {
			errs = append(errs, state.AccountErrors[a])
		}
		return fmt.Errorf("FetchLedgerStep: %w: %w", ErrAllAccountsFailed, errors.Join(errs...))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("FetchLedgerStep: %w", err)
	}
	return nil
}

// Step 2: FilterSelfTransfersStep drops transfers between two requested accounts.
type FilterSelfTransfersStep struct{}

func (s *FilterSelfTransfersStep) Execute(ctx context.Context, state *PipelineState) error {
	kept, removed := ledger.FilterSelfTransfers(state.Ledger.Snapshot(), ledger.OwnedSet(state.Accounts))
	state.Transactions = kept
	state.SelfTransfersRemoved = removed

	log := logger.FromContext(ctx)
	log.Debug().
		Int("removed", removed).
		Int("remaining", len(kept)).
		Msg("self transfers filtered")
	return nil
}

// Step 3: TransformRowsStep converts each transaction into export rows.
// A transaction that cannot be converted is counted and skipped.
type TransformRowsStep struct{}

func (s *TransformRowsStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	rows := make([]domain.ExportRow, 0, len(state.Transactions))
	for _, tx := range state.Transactions {
		txRows, err := export.ToRows(tx)
		if err != nil {
			reason := skipReason(err)
			state.Skipped[reason]++
			log.Warn().
				Err(err).
				Uint64("tx_id", tx.ID).
				Str("type", tx.TypeName()).
				Str("reason", reason).
				Msg("skipping transaction")
			continue
		}
		rows = append(rows, txRows...)
	}
	state.Rows = rows
	return nil
}

func skipReason(err error) string {
	var missing *domain.MissingAmountError
	var badTime *domain.TimestampConversionError
	switch {
	case errors.As(err, &missing):
		return SkipMissingAmount
	case errors.As(err, &badTime):
		return SkipInvalidTimestamp
	default:
		return SkipOther
	}
}

// Step 4a: WriteCSVStep writes the rows as CSV to W.
type WriteCSVStep struct {
	W io.Writer
}

func (s *WriteCSVStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := export.WriteCSV(s.W, state.Rows); err != nil {
		return fmt.Errorf("WriteCSVStep: %w", err)
	}
	return nil
}

// Step 4b: UploadCSVStep uploads the rows as a CSV object.
type UploadCSVStep struct {
	Uploader Uploader
	Bucket   string
	Object   string
}

func (s *UploadCSVStep) Execute(ctx context.Context, state *PipelineState) error {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, state.Rows); err != nil {
		return fmt.Errorf("UploadCSVStep: encoding: %w", err)
	}
	uri, err := s.Uploader.UploadBytes(ctx, s.Bucket, s.Object, gcsuploader.CSVContentType, buf.Bytes())
	if err != nil {
		return fmt.Errorf("UploadCSVStep: %w", err)
	}
	state.GCSURI = uri
	log := logger.FromContext(ctx)
	log.Info().Str("uri", uri).Int("rows", len(state.Rows)).Msg("export uploaded")
	return nil
}

// Step 4c: StoreBigQueryStep records the run and its rows.
type StoreBigQueryStep struct {
	Store ExportStore
}

func (s *StoreBigQueryStep) Execute(ctx context.Context, state *PipelineState) error {
	runID, err := s.Store.StartExportRun(ctx, state.Accounts)
	if err != nil {
		return fmt.Errorf("StoreBigQueryStep: %w", err)
	}
	state.RunID = runID

	if err := s.Store.InsertExportRows(ctx, runID, state.Rows); err != nil {
		s.Store.MarkExportRunFailed(ctx, runID, err)
		return fmt.Errorf("StoreBigQueryStep: %w", err)
	}
	if err := s.Store.MarkExportRunSucceeded(ctx, runID, state.RunStats()); err != nil {
		return fmt.Errorf("StoreBigQueryStep: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("run_id", runID).Int("rows", len(state.Rows)).Msg("export run stored")
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
