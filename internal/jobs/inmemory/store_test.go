package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/ccd-tax-export/internal/jobs"
)

func TestStore_SaveAndGetReturnCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	job := &jobs.ExportJob{JobID: "j1", Accounts: []string{"acc"}, Status: jobs.JobStatusPending}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error: %v", err)
	}
	job.Status = jobs.JobStatusFailed

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("stored job changed through caller pointer: %s", got.Status)
	}
	got.Status = jobs.JobStatusCompleted

	again, _ := store.GetJob(ctx, "j1")
	if again.Status != jobs.JobStatusPending {
		t.Errorf("stored job changed through returned pointer: %s", again.Status)
	}
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.SaveJob(ctx, &jobs.ExportJob{}); err == nil {
		t.Error("expected error for job without ID")
	}
	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if err := store.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, "x"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []*jobs.ExportJob{
		{JobID: "old", Accounts: []string{"a"}, Status: jobs.JobStatusCompleted},
		{JobID: "mid", Accounts: []string{"a", "b"}, Status: jobs.JobStatusFailed},
		{JobID: "new", Accounts: []string{"b"}, Status: jobs.JobStatusCompleted},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := store.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob() error: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", filter: jobs.JobFilter{}, want: []string{"new", "mid", "old"}},
		{name: "by account", filter: jobs.JobFilter{Account: "a"}, want: []string{"mid", "old"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusCompleted}, want: []string{"new", "old"}},
		{name: "limit", filter: jobs.JobFilter{Limit: 1}, want: []string{"new"}},
		{name: "offset", filter: jobs.JobFilter{Offset: 2}, want: []string{"old"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 5}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs() error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %v", len(got), tt.want)
			}
			for i := range tt.want {
				if got[i].JobID != tt.want[i] {
					t.Errorf("job %d = %s, want %s", i, got[i].JobID, tt.want[i])
				}
			}
		})
	}
}
