// -----------------------------------------------------------------------
// Pipeline Orchestrator - drives a job through its scraping stages
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/campusworks/harvester/internal/common"
	"github.com/campusworks/harvester/internal/interfaces"
	"github.com/campusworks/harvester/internal/models"
)

// errJobTerminal signals that a job reached a terminal state under another
// writer (usually the stall monitor) and the worker must stop touching it.
var errJobTerminal = errors.New("job already in terminal state")

// stageSpec describes one pipeline stage: its toggle, its progress window and
// the messages shown while it runs. Stages execute strictly in this order;
// stage N+1 never starts before stage N's outcome is recorded.
type stageSpec struct {
	name          string
	label         string
	message       string
	startProgress float64
	doneProgress  float64
	enabled       func(d *models.JobDetails) bool
}

var pipeline = []stageSpec{
	{
		name:          models.StageAttendance,
		label:         "Attendance",
		message:       "Scraping attendance data",
		startProgress: 0.1,
		doneProgress:  0.3,
		enabled:       func(d *models.JobDetails) bool { return d.ScrapeAttendance },
	},
	{
		name:          models.StageMidMarks,
		label:         "Mid marks",
		message:       "Scraping mid marks data",
		startProgress: 0.3,
		doneProgress:  0.5,
		enabled:       func(d *models.JobDetails) bool { return d.ScrapeMidMarks },
	},
	{
		name:          models.StagePersonalDetails,
		label:         "Personal details",
		message:       "Scraping personal details",
		startProgress: 0.5,
		doneProgress:  0.7,
		enabled:       func(d *models.JobDetails) bool { return d.ScrapePersonalDetails },
	},
}

// Service orchestrates scrape jobs: it creates the durable record, runs the
// stages on a background goroutine, applies the failure policy and triggers
// result delivery. All writes to a job document go through mutateJob so the
// worker and the stall monitor serialize on the per-id lock.
type Service struct {
	storage  interfaces.JobStorage
	runner   interfaces.TaskRunner
	uploader interfaces.UploadEngine
	locks    *jobLocks
	monitor  *Monitor
	logger   arbor.ILogger
}

// NewService creates the orchestrator and its stall monitor
func NewService(storage interfaces.JobStorage, runner interfaces.TaskRunner, uploadEngine interfaces.UploadEngine, config *common.Config, logger arbor.ILogger) *Service {
	locks := newJobLocks()
	return &Service{
		storage:  storage,
		runner:   runner,
		uploader: uploadEngine,
		locks:    locks,
		monitor:  NewMonitor(storage, locks, config.MaxJobRuntime(), config.Monitor.SweepSchedule, logger),
		logger:   logger,
	}
}

// Monitor returns the service's stall monitor
func (s *Service) Monitor() *Monitor {
	return s.monitor
}

// Submit validates a request, persists a queued job and starts a background
// worker. It returns the generated job id immediately; the caller polls
// Status with it.
func (s *Service) Submit(ctx context.Context, req models.ScrapeRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	id := common.NewJobID()
	job := models.NewJob(id, req.Details())

	if err := s.storage.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	s.logger.Info().
		Str("job_id", id).
		Str("academic_year", req.AcademicYear).
		Bool("upload", req.UploadResults).
		Msg("Job submitted")

	common.SafeGo(s.logger, "processJob:"+id, func() {
		s.process(id, req)
	})

	return id, nil
}

// Status sweeps for stalled jobs first, then loads the document, so a caller
// never observes a falsely running job past the stall threshold.
func (s *Service) Status(ctx context.Context, id string) (*models.Job, error) {
	if _, err := s.monitor.Sweep(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Stall sweep before status query failed")
	}
	return s.storage.GetJob(ctx, id)
}

// List returns every persisted job
func (s *Service) List(ctx context.Context) ([]*models.Job, error) {
	return s.storage.ListJobs(ctx)
}

// process runs the full pipeline for one job in the background
func (s *Service) process(id string, req models.ScrapeRequest) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_id", id).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Job worker panicked")
			s.failJob(ctx, id, fmt.Sprintf("Error: %v", r))
		}
	}()

	// Idempotent resume: a restarted process may pick up a submission whose
	// record never made it to the store
	if _, err := s.storage.GetJob(ctx, id); errors.Is(err, interfaces.ErrJobNotFound) {
		if err := s.storage.SaveJob(ctx, models.NewJob(id, req.Details())); err != nil {
			s.logger.Error().Err(err).Str("job_id", id).Msg("Failed to reconstruct job record")
			return
		}
	}

	if _, err := s.mutateJob(ctx, id, func(job *models.Job) error {
		return job.MarkRunning("Scraping in progress")
	}); err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("Failed to start job")
		return
	}

	details := req.Details()
	for _, stage := range pipeline {
		if !stage.enabled(&details) {
			continue
		}

		if err := s.runStage(ctx, id, req, stage); err != nil {
			if !errors.Is(err, errJobTerminal) {
				s.logger.Warn().Err(err).Str("job_id", id).Str("stage", stage.name).Msg("Pipeline halted")
			}
			return
		}
	}

	s.runUpload(ctx, id, req)
	s.finalize(ctx, id)
}

// runStage executes one pipeline stage and applies the fail-fast policy.
// A non-nil return means stop processing further stages.
func (s *Service) runStage(ctx context.Context, id string, req models.ScrapeRequest, stage stageSpec) error {
	if _, err := s.mutateJob(ctx, id, func(job *models.Job) error {
		job.Message = stage.message
		job.SetProgress(stage.startProgress)
		return nil
	}); err != nil {
		return err
	}

	result := s.runner.Run(ctx, stage.name, req.Username, req.Password, req.AcademicYear)

	if _, err := s.mutateJob(ctx, id, func(job *models.Job) error {
		job.SetStageResult(stage.name, result)
		job.SetProgress(stage.doneProgress)
		return nil
	}); err != nil {
		return err
	}

	if result.Success {
		return nil
	}

	// Fail fast: record the partial results and stop. Authentication
	// failures get their own message so callers can tell a credentials
	// problem from an infrastructure problem.
	message := fmt.Sprintf("%s scraper failed. Please check credentials and try again.", stage.label)
	if result.IsAuthFailure() {
		message = "Authentication failed: Invalid username or password"
	}

	s.failJob(ctx, id, message)
	return fmt.Errorf("stage %s failed: %s", stage.name, result.Message)
}

// runUpload appends the upload pseudo-stage when requested
func (s *Service) runUpload(ctx context.Context, id string, req models.ScrapeRequest) {
	if !req.UploadResults {
		return
	}

	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("Failed to load job before upload")
		return
	}

	if !anySuccess(job) {
		// Skip the engine entirely: there is nothing worth shipping
		s.mutateJob(ctx, id, func(job *models.Job) error {
			job.Message = "Skipping upload as all scrapers failed"
			job.SetStageResult(models.StageUpload, &models.StageResult{
				Success: false,
				Message: "Upload skipped because all scrapers failed",
			})
			job.SetProgress(0.9)
			return nil
		})
		return
	}

	s.mutateJob(ctx, id, func(job *models.Job) error {
		job.Message = "Uploading data to storage"
		return nil
	})

	result := s.executeUpload(ctx, id, req.ForceUpdate)

	s.mutateJob(ctx, id, func(job *models.Job) error {
		job.SetStageResult(models.StageUpload, result)
		job.SetProgress(0.9)
		return nil
	})
}

// executeUpload runs the upload engine and converts its outcome to a stage result
func (s *Service) executeUpload(ctx context.Context, id string, forceUpdate bool) *models.StageResult {
	if s.uploader == nil {
		return &models.StageResult{
			Success: false,
			Message: "Upload skipped because no object store is configured",
		}
	}

	stats, err := s.uploader.Run(ctx, forceUpdate, s.uploadProgress(ctx, id))
	if err != nil {
		return &models.StageResult{
			Success:        false,
			Message:        fmt.Sprintf("Error running uploader: %v", err),
			Classification: models.FailureGeneric,
		}
	}

	result := &models.StageResult{
		Success: stats.FailedFiles == 0,
		Message: stats.Summary(),
		Stats: map[string]string{
			"uploaded":    strconv.Itoa(stats.UploadedFiles),
			"skipped":     strconv.Itoa(stats.SkippedFiles),
			"failed":      strconv.Itoa(stats.FailedFiles),
			"total_bytes": strconv.FormatInt(stats.TotalBytes, 10),
		},
	}
	if !result.Success {
		result.Classification = models.FailureGeneric
		result.Message = fmt.Sprintf("%d files failed to upload. %s", stats.FailedFiles, stats.Summary())
	}
	return result
}

// uploadProgress returns a callback that advances the job's progress from
// 0.7 toward 0.9 as student directories complete, so pollers see movement
// during a long upload instead of a frozen beat.
func (s *Service) uploadProgress(ctx context.Context, id string) interfaces.UploadProgress {
	return func(processed, total int) {
		if total <= 0 {
			return
		}

		p := 0.7 + 0.2*float64(processed)/float64(total)
		if p > 0.9 {
			p = 0.9
		}

		s.mutateJob(ctx, id, func(job *models.Job) error {
			job.Message = fmt.Sprintf("Uploading data to storage (%d of %d students)", processed, total)
			job.SetProgress(p)
			return nil
		})
	}
}

// finalize applies the final classification over all recorded outcomes
func (s *Service) finalize(ctx context.Context, id string) {
	if _, err := s.mutateJob(ctx, id, func(job *models.Job) error {
		// The pipeline is over either way; terminal jobs report full progress
		job.SetProgress(1.0)

		// Authentication failure anywhere overrides any partial success
		for _, result := range job.Details.Results {
			if result.IsAuthFailure() {
				return job.MarkFailed("Authentication failed: Invalid username or password")
			}
		}

		successes, total := 0, len(job.Details.Results)
		for _, result := range job.Details.Results {
			if result.Success {
				successes++
			}
		}

		switch {
		case total == 0 || successes == 0:
			return job.MarkFailed("All scraping tasks failed")
		case successes == total:
			return job.MarkCompleted("All scraping tasks completed successfully")
		default:
			return job.MarkCompleted(fmt.Sprintf("%d of %d scraping tasks completed successfully", successes, total))
		}
	}); err != nil && !errors.Is(err, errJobTerminal) {
		s.logger.Error().Err(err).Str("job_id", id).Msg("Failed to finalize job")
	}
}

// failJob transitions a job to failed, tolerating an already-terminal state
func (s *Service) failJob(ctx context.Context, id, message string) {
	if _, err := s.mutateJob(ctx, id, func(job *models.Job) error {
		return job.MarkFailed(message)
	}); err != nil && !errors.Is(err, errJobTerminal) {
		s.logger.Error().Err(err).Str("job_id", id).Msg("Failed to mark job failed")
	}
}

// mutateJob performs one serialized read-modify-write of a job document.
// The per-id lock makes the sequence atomic with respect to the stall
// monitor; a terminal document is never modified further.
func (s *Service) mutateJob(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	lock := s.locks.For(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		return job, errJobTerminal
	}

	if err := fn(job); err != nil {
		return job, err
	}

	if err := s.storage.SaveJob(ctx, job); err != nil {
		// Best effort: losing one persistence beat is better than losing
		// the worker; the next transition re-persists the whole document
		s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to persist job update")
		return job, nil
	}

	return job, nil
}

// anySuccess reports whether at least one recorded stage succeeded
func anySuccess(job *models.Job) bool {
	for _, result := range job.Details.Results {
		if result.Success {
			return true
		}
	}
	return false
}
