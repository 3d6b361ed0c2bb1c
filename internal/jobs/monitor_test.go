package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/harvester/internal/common"
	"github.com/campusworks/harvester/internal/models"
)

func newTestMonitor(storage *memStorage, maxRuntime time.Duration) *Monitor {
	return NewMonitor(storage, newJobLocks(), maxRuntime, "@every 1m", common.GetLogger())
}

func saveRunningJob(t *testing.T, storage *memStorage, id string, age time.Duration) {
	t.Helper()
	job := models.NewJob(id, models.JobDetails{})
	require.NoError(t, job.MarkRunning("Scraping in progress"))
	job.StartTime = time.Now().Add(-age)
	require.NoError(t, storage.SaveJob(context.Background(), job))
}

func TestMonitor_SweepReapsStalledJob(t *testing.T) {
	storage := newMemStorage()
	monitor := newTestMonitor(storage, 15*time.Minute)

	saveRunningJob(t, storage, "job_stalled", 20*time.Minute)

	reaped, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"job_stalled"}, reaped)

	job, err := storage.GetJob(context.Background(), "job_stalled")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Regexp(t, `^Job timed out after \d+ seconds$`, job.Message)
	assert.NotNil(t, job.EndTime)
}

func TestMonitor_SweepLeavesFreshJobs(t *testing.T) {
	storage := newMemStorage()
	monitor := newTestMonitor(storage, 15*time.Minute)

	saveRunningJob(t, storage, "job_fresh", time.Minute)

	reaped, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reaped)

	job, err := storage.GetJob(context.Background(), "job_fresh")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
}

// A job whose worker died before pickup sits queued forever unless the sweep
// covers it too.
func TestMonitor_SweepReapsStuckQueuedJob(t *testing.T) {
	storage := newMemStorage()
	monitor := newTestMonitor(storage, 15*time.Minute)

	job := models.NewJob("job_stuck_queued", models.JobDetails{})
	job.StartTime = time.Now().Add(-20 * time.Minute)
	require.NoError(t, storage.SaveJob(context.Background(), job))

	reaped, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"job_stuck_queued"}, reaped)

	loaded, err := storage.GetJob(context.Background(), "job_stuck_queued")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, loaded.Status)
	assert.Regexp(t, `^Job timed out after \d+ seconds$`, loaded.Message)
}

func TestMonitor_SweepIgnoresTerminalJobs(t *testing.T) {
	storage := newMemStorage()
	monitor := newTestMonitor(storage, 15*time.Minute)

	job := models.NewJob("job_done", models.JobDetails{})
	require.NoError(t, job.MarkRunning("running"))
	require.NoError(t, job.MarkCompleted("All scraping tasks completed successfully"))
	job.StartTime = time.Now().Add(-time.Hour)
	require.NoError(t, storage.SaveJob(context.Background(), job))

	reaped, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reaped)

	loaded, err := storage.GetJob(context.Background(), "job_done")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, loaded.Status)
	assert.Equal(t, "All scraping tasks completed successfully", loaded.Message)
}

func TestMonitor_SweepIsIdempotent(t *testing.T) {
	storage := newMemStorage()
	monitor := newTestMonitor(storage, 15*time.Minute)

	saveRunningJob(t, storage, "job_stalled", 20*time.Minute)

	first, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second, "an already-reaped job must not be reaped twice")
}

func TestMonitor_SweepReapsMultiple(t *testing.T) {
	storage := newMemStorage()
	monitor := newTestMonitor(storage, 15*time.Minute)

	for i := 0; i < 3; i++ {
		saveRunningJob(t, storage, fmt.Sprintf("job_stalled_%d", i), 30*time.Minute)
	}
	saveRunningJob(t, storage, "job_fresh", time.Minute)

	reaped, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, reaped, 3)
}

// Status must never report a stalled job as still running: the service sweeps
// before loading the document.
func TestService_StatusSweepsBeforeLoad(t *testing.T) {
	storage := newMemStorage()
	config := testConfig()
	config.Monitor.MaxRuntime = "900s"
	service := NewService(storage, &stubRunner{}, nil, config, common.GetLogger())

	saveRunningJob(t, storage, "job_stalled", 20*time.Minute)

	job, err := service.Status(context.Background(), "job_stalled")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Message, "Job timed out after")
}
