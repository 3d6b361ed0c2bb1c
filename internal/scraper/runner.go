// -----------------------------------------------------------------------
// Task Runner - invokes one external scraper process per stage
// -----------------------------------------------------------------------

package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/campusworks/harvester/internal/common"
	"github.com/campusworks/harvester/internal/interfaces"
	"github.com/campusworks/harvester/internal/models"
)

// scriptNames maps a stage to its scraper executable
var scriptNames = map[string]string{
	models.StageAttendance:      "attendance_scraper.py",
	models.StageMidMarks:        "mid_marks_scraper.py",
	models.StagePersonalDetails: "personal_details_scraper.py",
}

// Runner executes external scraper tasks with a bounded wall-clock timeout.
// One invocation runs one stage; the process is killed on expiry and any
// partial output is still captured and classified.
type Runner struct {
	config  *common.ScraperConfig
	timeout time.Duration
	logger  arbor.ILogger
}

// NewRunner creates a task runner from scraper configuration
func NewRunner(config *common.ScraperConfig, timeout time.Duration, logger arbor.ILogger) interfaces.TaskRunner {
	return &Runner{
		config:  config,
		timeout: timeout,
		logger:  logger,
	}
}

// Run invokes the scraper for one stage and classifies the outcome
func (r *Runner) Run(ctx context.Context, stage, username, password, academicYear string) *models.StageResult {
	scriptPath, err := r.resolveScript(stage)
	if err != nil {
		return &models.StageResult{
			Success:        false,
			Message:        err.Error(),
			Classification: models.FailureGeneric,
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := r.buildArgs(stage, username, password, academicYear)

	r.logger.Info().
		Str("stage", stage).
		Str("script", scriptPath).
		Str("academic_year", academicYear).
		Msg("Running scraper task")

	cmd := exec.CommandContext(runCtx, scriptPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	result := Classify(stage, runErr, timedOut, stdout.String(), stderr.String())

	if result.Success {
		r.logger.Info().
			Str("stage", stage).
			Msg("Scraper task completed")
	} else {
		r.logger.Warn().
			Str("stage", stage).
			Str("classification", string(result.Classification)).
			Str("message", result.Message).
			Msg("Scraper task failed")
	}

	return result
}

// resolveScript locates the scraper executable for a stage. The script
// directory is checked first, then its parent (scrapers sometimes live one
// level above the service binary in deployments).
func (r *Runner) resolveScript(stage string) (string, error) {
	name, ok := scriptNames[stage]
	if !ok {
		return "", fmt.Errorf("invalid scraper stage: %s", stage)
	}

	primary := filepath.Join(r.config.ScriptDir, name)
	if _, err := os.Stat(primary); err == nil {
		return primary, nil
	}

	fallback := filepath.Join(filepath.Dir(r.config.ScriptDir), name)
	if _, err := os.Stat(fallback); err == nil {
		return fallback, nil
	}

	return "", fmt.Errorf("scraper script not found: %s", primary)
}

// buildArgs assembles the scraper command line. The personal-details scraper
// does not accept --max-retries, so it is omitted there.
func (r *Runner) buildArgs(stage, username, password, academicYear string) []string {
	args := []string{
		"--username", username,
		"--password", password,
		"--academic-year", academicYear,
		"--workers", strconv.Itoa(r.config.Workers),
		"--worker-mode", r.config.WorkerMode,
		"--delay", r.config.Delay,
	}
	if stage != models.StagePersonalDetails {
		args = append(args, "--max-retries", strconv.Itoa(r.config.MaxRetries))
	}
	// CSV generation is disabled to save time; artifacts are JSON only
	args = append(args, "--no-csv", "--headless")
	return args
}
