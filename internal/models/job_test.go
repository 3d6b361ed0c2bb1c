package models

import (
	"testing"
	"time"
)

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"queued to running", JobStatusQueued, JobStatusRunning, true},
		{"queued to failed", JobStatusQueued, JobStatusFailed, true},
		{"queued to completed", JobStatusQueued, JobStatusCompleted, false},
		{"running to completed", JobStatusRunning, JobStatusCompleted, true},
		{"running to failed", JobStatusRunning, JobStatusFailed, true},
		{"running to queued", JobStatusRunning, JobStatusQueued, false},
		{"completed to failed", JobStatusCompleted, JobStatusFailed, false},
		{"completed to running", JobStatusCompleted, JobStatusRunning, false},
		{"failed to running", JobStatusFailed, JobStatusRunning, false},
		{"failed to completed", JobStatusFailed, JobStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestNewJob_Defaults(t *testing.T) {
	before := time.Now()
	job := NewJob("job_abc", JobDetails{Username: "23A81A0501", AcademicYear: "2022-23"})

	if job.Status != JobStatusQueued {
		t.Errorf("expected status queued, got %s", job.Status)
	}
	if job.Message != "Job queued for processing" {
		t.Errorf("unexpected message: %s", job.Message)
	}
	if job.Progress != 0.0 {
		t.Errorf("expected progress 0, got %f", job.Progress)
	}
	if job.EndTime != nil {
		t.Error("expected nil end time on a new job")
	}
	if job.StartTime.Before(before) {
		t.Error("start time should be set at creation")
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := NewJob("job_abc", JobDetails{})

	if err := job.MarkRunning("Scraping in progress"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if job.Status != JobStatusRunning {
		t.Errorf("expected running, got %s", job.Status)
	}

	if err := job.MarkCompleted("All scraping tasks completed successfully"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if job.Progress != 1.0 {
		t.Errorf("completed job should have progress 1.0, got %f", job.Progress)
	}
	if job.EndTime == nil {
		t.Error("terminal job should have an end time")
	}

	// Terminal state is final
	if err := job.MarkFailed("too late"); err == nil {
		t.Error("expected error transitioning out of completed")
	}
	if job.Status != JobStatusCompleted {
		t.Errorf("status must not change after terminal transition, got %s", job.Status)
	}
}

func TestJob_EndTimeSetOnce(t *testing.T) {
	job := NewJob("job_abc", JobDetails{})
	if err := job.MarkRunning("running"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := job.MarkFailed("boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	first := *job.EndTime
	_ = job.MarkCompleted("ignored")
	if !job.EndTime.Equal(first) {
		t.Error("end time must not change after being set")
	}
}

func TestJob_SetProgressMonotonic(t *testing.T) {
	job := NewJob("job_abc", JobDetails{})

	job.SetProgress(0.5)
	job.SetProgress(0.3)
	if job.Progress != 0.5 {
		t.Errorf("progress must not move backwards, got %f", job.Progress)
	}

	job.SetProgress(1.5)
	if job.Progress != 1.0 {
		t.Errorf("progress must clamp at 1.0, got %f", job.Progress)
	}
}

func TestJob_SetStageResult(t *testing.T) {
	job := NewJob("job_abc", JobDetails{})

	job.SetStageResult(StageAttendance, &StageResult{Success: true, Message: "ok"})
	job.SetStageResult(StageMidMarks, &StageResult{Success: false, Classification: FailureAuth})

	if got := job.StageResult(StageAttendance); got == nil || !got.Success {
		t.Error("attendance result not recorded")
	}
	if got := job.StageResult(StageMidMarks); got == nil || !got.IsAuthFailure() {
		t.Error("mid marks result should register as auth failure")
	}
	if got := job.StageResult(StagePersonalDetails); got != nil {
		t.Error("unrecorded stage should return nil")
	}
}

func TestStageResult_IsAuthFailure(t *testing.T) {
	tests := []struct {
		name   string
		result *StageResult
		want   bool
	}{
		{"nil result", nil, false},
		{"auth failure", &StageResult{Success: false, Classification: FailureAuth}, true},
		{"successful result never auth", &StageResult{Success: true, Classification: FailureAuth}, false},
		{"generic failure", &StageResult{Success: false, Classification: FailureGeneric}, false},
		{"unclassified failure", &StageResult{Success: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.IsAuthFailure(); got != tt.want {
				t.Errorf("IsAuthFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}
