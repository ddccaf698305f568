package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/jobs"
)

func TestStore_SaveJobRequiresID(t *testing.T) {
	t.Parallel()

	s := NewStore()
	err := s.SaveJob(context.Background(), &jobs.RefreshSignalsJob{UserID: "user_1"})
	if err == nil {
		t.Fatal("SaveJob() expected error for missing job ID, got nil")
	}
}

func TestStore_SaveAndGetJob(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	job := &jobs.RefreshSignalsJob{
		JobID:      "job_1",
		UserID:     "user_1",
		TimeWindow: domain.Window30d,
		Status:     jobs.JobStatusPending,
		CreatedAt:  time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
		MaxRetries: 3,
	}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}

	got, err := s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.UserID != "user_1" || got.TimeWindow != domain.Window30d || got.Status != jobs.JobStatusPending {
		t.Errorf("GetJob() = %+v, want saved fields", got)
	}

	// Mutating the returned copy must not leak into the store.
	got.Status = jobs.JobStatusFailed
	again, err := s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if again.Status != jobs.JobStatusPending {
		t.Errorf("stored job status = %q after caller mutation, want %q", again.Status, jobs.JobStatusPending)
	}
}

func TestStore_GetJobNotFound(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if _, err := s.GetJob(context.Background(), "job_missing"); err == nil {
		t.Fatal("GetJob() expected error for unknown job, got nil")
	}
}

func TestStore_ListJobs(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	seed := []*jobs.RefreshSignalsJob{
		{JobID: "job_1", UserID: "user_1", Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "job_2", UserID: "user_2", Status: jobs.JobStatusPending, CreatedAt: base.Add(time.Minute)},
		{JobID: "job_3", UserID: "user_1", Status: jobs.JobStatusFailed, CreatedAt: base.Add(2 * time.Minute)},
		{JobID: "job_4", UserID: "user_3", Status: jobs.JobStatusPending, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, j := range seed {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob(%s) error = %v", j.JobID, err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all oldest first", filter: jobs.JobFilter{}, want: []string{"job_1", "job_2", "job_3", "job_4"}},
		{name: "by user", filter: jobs.JobFilter{UserID: "user_1"}, want: []string{"job_1", "job_3"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusPending}, want: []string{"job_2", "job_4"}},
		{name: "user and status", filter: jobs.JobFilter{UserID: "user_1", Status: jobs.JobStatusFailed}, want: []string{"job_3"}},
		{name: "no match", filter: jobs.JobFilter{UserID: "user_9"}, want: nil},
		{name: "limit", filter: jobs.JobFilter{Limit: 2}, want: []string{"job_1", "job_2"}},
		{name: "offset", filter: jobs.JobFilter{Offset: 2}, want: []string{"job_3", "job_4"}},
		{name: "offset and limit", filter: jobs.JobFilter{Offset: 1, Limit: 2}, want: []string{"job_2", "job_3"}},
		{name: "offset beyond end", filter: jobs.JobFilter{Offset: 10}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListJobs() returned %d jobs, want %d", len(got), len(tt.want))
			}
			for i, j := range got {
				if j.JobID != tt.want[i] {
					t.Errorf("ListJobs()[%d] = %s, want %s", i, j.JobID, tt.want[i])
				}
			}
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	job := &jobs.RefreshSignalsJob{JobID: "job_1", UserID: "user_1", Status: jobs.JobStatusRunning}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}

	if err := s.UpdateJobStatus(ctx, "job_1", jobs.JobStatusFailed, "ledger unavailable"); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}

	got, err := s.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != jobs.JobStatusFailed {
		t.Errorf("status = %q, want %q", got.Status, jobs.JobStatusFailed)
	}
	if got.Error != "ledger unavailable" {
		t.Errorf("error = %q, want %q", got.Error, "ledger unavailable")
	}

	if err := s.UpdateJobStatus(ctx, "job_missing", jobs.JobStatusFailed, ""); err == nil {
		t.Fatal("UpdateJobStatus() expected error for unknown job, got nil")
	}
}
