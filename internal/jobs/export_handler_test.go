package jobs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
	"github.com/dvloznov/ccd-tax-export/internal/pipeline"
	"github.com/dvloznov/ccd-tax-export/internal/walletproxy"
)

type stubFetcher struct {
	txs []domain.Transaction
	err error
}

func (s stubFetcher) FetchPage(ctx context.Context, account string, limit int, cursor *uint64) (walletproxy.Page, error) {
	if s.err != nil {
		return walletproxy.Page{}, s.err
	}
	return walletproxy.Page{Transactions: s.txs, Count: len(s.txs), Limit: 100}, nil
}

type stubUploader struct{ object string }

func (s *stubUploader) UploadBytes(ctx context.Context, bucketName, objectName, contentType string, data []byte) (string, error) {
	s.object = objectName
	return "gs://" + bucketName + "/" + objectName, nil
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(&bytes.Buffer{}))
}

func TestExportHandler_RecordsResult(t *testing.T) {
	total := int64(2000000)
	fetcher := stubFetcher{txs: []domain.Transaction{
		{ID: 1, BlockTime: 1709296496, Details: domain.PaydayReward{}, Total: &total},
	}}
	uploader := &stubUploader{}
	handler := NewExportHandler(pipeline.Deps{Fetcher: fetcher, Uploader: uploader}, ExportOptions{GCSBucket: "tax-exports"})

	job := &ExportJob{JobID: "job-1", Accounts: []string{"acc"}}
	if err := handler(quietContext(), job); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if job.RowCount != 1 || len(job.Rows) != 1 || job.Rows[0].Label != domain.LabelMining {
		t.Errorf("unexpected rows on job: %+v", job.Rows)
	}
	if job.GCSURI != "gs://tax-exports/exports/job-1.csv" || uploader.object != "exports/job-1.csv" {
		t.Errorf("unexpected upload target %q", job.GCSURI)
	}
	if job.Summary == "" {
		t.Error("expected a summary")
	}
}

func TestExportHandler_AllAccountsFail(t *testing.T) {
	handler := NewExportHandler(pipeline.Deps{Fetcher: stubFetcher{err: errors.New("502")}}, ExportOptions{})

	job := &ExportJob{JobID: "job-2", Accounts: []string{"a", "b"}}
	err := handler(quietContext(), job)
	if !errors.Is(err, pipeline.ErrAllAccountsFailed) {
		t.Fatalf("expected ErrAllAccountsFailed, got %v", err)
	}
	if len(job.FailedAccounts) != 2 {
		t.Errorf("FailedAccounts = %v", job.FailedAccounts)
	}
}

type otherJob struct{}

func (otherJob) GetID() string        { return "x" }
func (otherJob) GetType() JobType     { return "other" }
func (otherJob) GetStatus() JobStatus { return JobStatusPending }

func TestExportHandler_RejectsOtherJobTypes(t *testing.T) {
	handler := NewExportHandler(pipeline.Deps{Fetcher: stubFetcher{}}, ExportOptions{})
	if err := handler(quietContext(), otherJob{}); err == nil {
		t.Error("expected error for unknown job type")
	}
}
