package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/ccd-tax-export/internal/config"
	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/gcsuploader"
	infraBQ "github.com/dvloznov/ccd-tax-export/internal/infra/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"github.com/dvloznov/ccd-tax-export/internal/pipeline"
	"github.com/dvloznov/ccd-tax-export/internal/walletproxy"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		runExport(cfg, log)
	case "ledger":
		runLedger(cfg, log)
	case "runs":
		runRuns(cfg, log)
	case "init-bq":
		runInitBigQuery(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("CCD Tax Export CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  export    Export the transaction history of owned accounts as CSV")
	fmt.Println("  ledger    Print the deduplicated ledger without self transfers")
	fmt.Println("  runs      List export runs stored in BigQuery")
	fmt.Println("  init-bq   Create the BigQuery dataset and tables")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// fetchFlags are shared by the commands that read the wallet proxy.
type fetchFlags struct {
	accounts    accountsFlag
	url         *string
	limit       *int
	concurrency *int
	timeout     *time.Duration
}

func registerFetchFlags(fs *flag.FlagSet, cfg *config.Config) *fetchFlags {
	f := &fetchFlags{}
	fs.Var(&f.accounts, "a", "Owned account address (repeatable)")
	fs.Var(&f.accounts, "account", "Owned account address (repeatable)")
	f.url = fs.String("url", cfg.WalletProxyURL, "Wallet proxy base URL")
	f.limit = fs.Int("limit", cfg.PageSize, "Transactions per page")
	f.concurrency = fs.Int("concurrency", cfg.FetchConcurrency, "Accounts fetched in parallel")
	f.timeout = fs.Duration("timeout", cfg.HTTPTimeout, "HTTP request timeout")
	return f
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, carrying log.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return logger.WithContext(ctx, log), cancel
}

func runExport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	ff := registerFetchFlags(fs, cfg)
	out := fs.String("out", "", "Write CSV to this file instead of stdout")
	bucket := fs.String("gcs-bucket", "", "Also upload the CSV to this GCS bucket")
	object := fs.String("gcs-object", "", "Object name for the upload (default exports/ccd-<timestamp>.csv)")
	storeBQ := fs.Bool("bigquery", false, "Record the export run and rows in BigQuery")
	project := fs.String("project", cfg.GCPProject, "GCP project for BigQuery")
	dataset := fs.String("dataset", cfg.BQDataset, "BigQuery dataset")
	fs.Parse(os.Args[2:])

	if len(ff.accounts) == 0 {
		log.Fatal().Msg("Error: at least one -a/-account is required")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	var w io.Writer = os.Stdout
	var outFile *os.File
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatal().Err(err).Str("file", *out).Msg("Failed to create output file")
		}
		outFile = f
		w = f
	}

	req := pipeline.Request{
		Accounts:      ff.accounts,
		PageSize:      *ff.limit,
		Concurrency:   *ff.concurrency,
		CSVOut:        w,
		GCSBucket:     *bucket,
		StoreBigQuery: *storeBQ,
	}
	deps := pipeline.Deps{
		Fetcher: walletproxy.NewClient(*ff.url, *ff.timeout),
	}

	if *bucket != "" {
		req.GCSObject = *object
		if req.GCSObject == "" {
			req.GCSObject = gcsuploader.ExportObjectName(time.Now())
		}
		deps.Uploader = gcsuploader.NewGCSStorageService()
	}

	if *storeBQ {
		repo, err := infraBQ.NewBigQueryExportRepository(ctx, *project, *dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
		}
		defer repo.Close()
		deps.Store = repo
	}

	res, err := pipeline.Run(ctx, req, deps)
	reportAccountErrors(res, log)
	if err != nil {
		if errors.Is(err, pipeline.ErrAllAccountsFailed) {
			log.Error().Msg("No account could be fetched")
		}
		log.Error().Err(err).Msg("Export failed")
		os.Exit(1)
	}

	if outFile != nil {
		if err := outFile.Close(); err != nil {
			log.Fatal().Err(err).Str("file", *out).Msg("Failed to write output file")
		}
	}

	fmt.Fprintln(os.Stderr, res.Summary())
}

func reportAccountErrors(res *pipeline.Result, log zerolog.Logger) {
	if res == nil {
		return
	}
	for _, account := range res.FailedAccounts() {
		log.Warn().Err(res.AccountErrors[account]).Str("account", account).Msg("Account skipped")
	}
}

func runLedger(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	ff := registerFetchFlags(fs, cfg)
	fs.Parse(os.Args[2:])

	if len(ff.accounts) == 0 {
		log.Fatal().Msg("Error: at least one -a/-account is required")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	res, err := pipeline.Ledger(ctx, pipeline.Request{
		Accounts:    ff.accounts,
		PageSize:    *ff.limit,
		Concurrency: *ff.concurrency,
	}, pipeline.Deps{Fetcher: walletproxy.NewClient(*ff.url, *ff.timeout)})
	reportAccountErrors(res, log)
	if err != nil {
		log.Error().Err(err).Msg("Ledger fetch failed")
		os.Exit(1)
	}

	if err := printLedger(os.Stdout, res.Transactions); err != nil {
		log.Fatal().Err(err).Msg("Failed to print ledger")
	}
	fmt.Fprintln(os.Stderr, res.Summary())
}

func printLedger(w io.Writer, txs []domain.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTYPE\tTOTAL\tCOST\tHASH")
	for _, tx := range txs {
		when := "invalid"
		if t, err := domain.BlockTimeUTC(tx.BlockTime); err == nil {
			when = t.Format(domain.DateLayout)
		}
		hash := "-"
		if tx.Hash != nil {
			hash = *tx.Hash
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", tx.ID, when, tx.TypeName(), formatAmount(tx.Total), formatAmount(tx.Cost), hash)
	}
	return tw.Flush()
}

func formatAmount(v *int64) string {
	if v == nil {
		return "-"
	}
	return domain.MicroCCDToCCD(*v).String()
}

func runRuns(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	project := fs.String("project", cfg.GCPProject, "GCP project for BigQuery")
	dataset := fs.String("dataset", cfg.BQDataset, "BigQuery dataset")
	limit := fs.Int("n", 20, "Number of runs to show")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewBigQueryExportRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	runs, err := repo.ListExportRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list export runs")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tACCOUNTS\tROWS\tFAILED")
	for _, r := range runs {
		rows := "-"
		if r.RowsExported.Valid {
			rows = fmt.Sprint(r.RowsExported.Int64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\n",
			r.RunID, r.StartedTS.UTC().Format(time.RFC3339), r.Status, len(r.Accounts), rows, len(r.FailedAccounts))
	}
	tw.Flush()
}

func runInitBigQuery(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("init-bq", flag.ExitOnError)
	project := fs.String("project", cfg.GCPProject, "GCP project for BigQuery")
	dataset := fs.String("dataset", cfg.BQDataset, "BigQuery dataset")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewBigQueryExportRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	if err := repo.EnsureTables(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create tables")
	}

	fmt.Printf("BigQuery tables ready in %s.%s\n", *project, *dataset)
}
