package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"github.com/dvloznov/ccd-tax-export/internal/pipeline"
)

// ExportOptions configures the exports run by NewExportHandler.
type ExportOptions struct {
	PageSize      int
	Concurrency   int
	GCSBucket     string
	StoreBigQuery bool
}

// NewExportHandler returns a JobHandler that runs the export pipeline for
// ExportJobs and records the outcome on the job.
func NewExportHandler(deps pipeline.Deps, opts ExportOptions) JobHandler {
	return func(ctx context.Context, job Job) error {
		exportJob, ok := job.(*ExportJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With().Str("job_id", exportJob.JobID).Logger())
		log := logger.FromContext(ctx)
		log.Info().Strs("accounts", exportJob.Accounts).Int("attempt", exportJob.RetryCount+1).Msg("Processing export job")

		req := pipeline.Request{
			Accounts:      exportJob.Accounts,
			PageSize:      opts.PageSize,
			Concurrency:   opts.Concurrency,
			StoreBigQuery: opts.StoreBigQuery,
		}
		if opts.GCSBucket != "" {
			req.GCSBucket = opts.GCSBucket
			req.GCSObject = fmt.Sprintf("exports/%s.csv", exportJob.JobID)
		}

		start := time.Now()
		res, err := pipeline.Run(ctx, req, deps)

		exportJob.Summary = res.Summary()
		exportJob.FailedAccounts = res.FailedAccounts()
		exportJob.Rows = res.Rows
		exportJob.RowCount = len(res.Rows)
		exportJob.RunID = res.RunID
		exportJob.GCSURI = res.GCSURI

		if err != nil {
			return err
		}

		log.Info().
			Dur("duration", time.Since(start)).
			Str("summary", exportJob.Summary).
			Msg("Export job completed")
		return nil
	}
}
