// -----------------------------------------------------------------------
// Job - Durable scrape job document and state machine
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// JobStatus represents the state of a scrape job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal returns true if the status is a terminal state
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a transition to the given status is legal.
// The state machine only moves forward: queued -> running -> {completed, failed}.
// Queued jobs may also fail directly (e.g. reaped before a worker picked them up).
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return to == JobStatusRunning || to == JobStatusFailed
	case JobStatusRunning:
		return to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}

// Stage names, in pipeline order. "upload" is a pseudo-stage appended by the
// orchestrator after the scraping stages.
const (
	StageAttendance      = "attendance"
	StageMidMarks        = "mid_marks"
	StagePersonalDetails = "personal_details"
	StageUpload          = "upload"
)

// FailureClass is the fixed failure taxonomy for stage outcomes, in
// classification priority order: timeout, auth, connectivity, generic.
type FailureClass string

const (
	FailureNone         FailureClass = ""
	FailureTimeout      FailureClass = "timeout"
	FailureAuth         FailureClass = "auth"
	FailureConnectivity FailureClass = "connectivity"
	FailureGeneric      FailureClass = "generic"
)

// StageResult is the outcome of one external task invocation.
// Raw captured output is retained on both success and failure paths for diagnostics.
type StageResult struct {
	Success        bool              `json:"success"`
	Message        string            `json:"message"`
	Classification FailureClass      `json:"classification,omitempty"`
	Stats          map[string]string `json:"stats,omitempty"`
	Stdout         string            `json:"stdout,omitempty"`
	Stderr         string            `json:"stderr,omitempty"`
}

// IsAuthFailure reports whether this outcome carries the authentication-failure marker
func (r *StageResult) IsAuthFailure() bool {
	return r != nil && !r.Success && r.Classification == FailureAuth
}

// JobDetails holds the input parameters captured at submission time.
// Everything except Results is immutable after creation; Results is
// populated incrementally as stages complete.
type JobDetails struct {
	Username              string                  `json:"username"`
	AcademicYear          string                  `json:"academic_year"`
	ScrapeAttendance      bool                    `json:"scrape_attendance"`
	ScrapeMidMarks        bool                    `json:"scrape_mid_marks"`
	ScrapePersonalDetails bool                    `json:"scrape_personal_details"`
	UploadResults         bool                    `json:"upload_to_storage"`
	ForceUpdate           bool                    `json:"force_update"`
	Results               map[string]*StageResult `json:"results,omitempty"`
}

// Job is the unit of work: one multi-stage portal scrape, persisted as a
// whole document on every state change.
type Job struct {
	ID        string     `json:"id"`
	Status    JobStatus  `json:"status"`
	Message   string     `json:"message"`
	Progress  float64    `json:"progress"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Details   JobDetails `json:"details"`
}

// NewJob creates a queued job from submission details.
// StartTime is set at submission so the stall monitor can bound total runtime
// even for jobs whose worker never picked them up.
func NewJob(id string, details JobDetails) *Job {
	return &Job{
		ID:        id,
		Status:    JobStatusQueued,
		Message:   "Job queued for processing",
		Progress:  0.0,
		StartTime: time.Now(),
		Details:   details,
	}
}

// transition moves the job to a new status, enforcing forward-only movement
func (j *Job) transition(to JobStatus, message string) error {
	if !j.Status.CanTransition(to) {
		return fmt.Errorf("illegal job transition %s -> %s for job %s", j.Status, to, j.ID)
	}
	j.Status = to
	j.Message = message
	if to.IsTerminal() && j.EndTime == nil {
		now := time.Now()
		j.EndTime = &now
	}
	return nil
}

// MarkRunning transitions the job to running
func (j *Job) MarkRunning(message string) error {
	return j.transition(JobStatusRunning, message)
}

// MarkCompleted transitions the job to completed and sets the end time
func (j *Job) MarkCompleted(message string) error {
	if err := j.transition(JobStatusCompleted, message); err != nil {
		return err
	}
	j.Progress = 1.0
	return nil
}

// MarkFailed transitions the job to failed and sets the end time
func (j *Job) MarkFailed(message string) error {
	return j.transition(JobStatusFailed, message)
}

// SetProgress advances progress; it never moves backwards while running
func (j *Job) SetProgress(p float64) {
	if p > 1.0 {
		p = 1.0
	}
	if p > j.Progress {
		j.Progress = p
	}
}

// SetStageResult records the outcome of one stage
func (j *Job) SetStageResult(stage string, result *StageResult) {
	if j.Details.Results == nil {
		j.Details.Results = make(map[string]*StageResult)
	}
	j.Details.Results[stage] = result
}

// StageResult returns the recorded outcome for a stage, or nil
func (j *Job) StageResult(stage string) *StageResult {
	return j.Details.Results[stage]
}

// Runtime returns how long the job has been running relative to now
func (j *Job) Runtime(now time.Time) time.Duration {
	return now.Sub(j.StartTime)
}
