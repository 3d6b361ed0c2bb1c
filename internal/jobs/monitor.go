// -----------------------------------------------------------------------
// Stall Monitor - reaps jobs that have exceeded the runtime budget
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/campusworks/harvester/internal/interfaces"
)

// Monitor force-fails active jobs that have exceeded the maximum runtime.
// It shares the per-id lock registry with the orchestrator so a reap and a
// worker transition on the same job are mutually exclusive. Sweeping is safe
// to invoke concurrently with itself: an already-reaped job is terminal
// and drops out of the scan.
type Monitor struct {
	storage    interfaces.JobStorage
	locks      *jobLocks
	maxRuntime time.Duration
	schedule   string
	cron       *cron.Cron
	logger     arbor.ILogger
}

// NewMonitor creates a stall monitor. The schedule is a cron expression for
// background sweeps; sweeps also run inline before every status query.
func NewMonitor(storage interfaces.JobStorage, locks *jobLocks, maxRuntime time.Duration, schedule string, logger arbor.ILogger) *Monitor {
	return &Monitor{
		storage:    storage,
		locks:      locks,
		maxRuntime: maxRuntime,
		schedule:   schedule,
		cron:       cron.New(),
		logger:     logger,
	}
}

// Start begins periodic background sweeps
func (m *Monitor) Start() error {
	_, err := m.cron.AddFunc(m.schedule, func() {
		if _, err := m.Sweep(context.Background()); err != nil {
			m.logger.Error().Err(err).Msg("Stall sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule stall sweep: %w", err)
	}

	m.cron.Start()
	m.logger.Info().
		Str("schedule", m.schedule).
		Str("max_runtime", m.maxRuntime.String()).
		Msg("Stall monitor started")
	return nil
}

// Stop halts background sweeps
func (m *Monitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info().Msg("Stall monitor stopped")
}

// Sweep scans active jobs and force-fails any exceeding the runtime budget.
// Queued jobs are covered too: a record whose worker died before pickup must
// not sit queued forever. Returns the ids of the jobs reaped in this pass.
func (m *Monitor) Sweep(ctx context.Context) ([]string, error) {
	active, err := m.storage.ListActiveJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}

	var reaped []string
	now := time.Now()

	for _, candidate := range active {
		if candidate.Runtime(now) <= m.maxRuntime {
			continue
		}

		id := candidate.ID
		lock := m.locks.For(id)
		lock.Lock()

		// Re-read under the lock: the worker may have finished the job
		// between the scan and here
		job, err := m.storage.GetJob(ctx, id)
		if err != nil {
			lock.Unlock()
			m.logger.Error().Err(err).Str("job_id", id).Msg("Failed to load job during sweep")
			continue
		}

		runtime := job.Runtime(now)
		if job.Status.IsTerminal() || runtime <= m.maxRuntime {
			lock.Unlock()
			continue
		}

		m.logger.Warn().
			Str("job_id", id).
			Str("runtime", runtime.String()).
			Msg("Job exceeded maximum runtime, marking as stalled")

		if err := job.MarkFailed(fmt.Sprintf("Job timed out after %d seconds", int(runtime.Seconds()))); err != nil {
			lock.Unlock()
			continue
		}

		if err := m.storage.SaveJob(ctx, job); err != nil {
			m.logger.Error().Err(err).Str("job_id", id).Msg("Failed to persist stalled job")
			lock.Unlock()
			continue
		}

		lock.Unlock()
		reaped = append(reaped, id)
	}

	if len(reaped) > 0 {
		m.logger.Info().
			Int("count", len(reaped)).
			Strs("job_ids", reaped).
			Msg("Marked stalled jobs as failed")
	}

	return reaped, nil
}
