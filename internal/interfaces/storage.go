package interfaces

import (
	"context"
	"errors"

	"github.com/campusworks/harvester/internal/models"
)

// ErrJobNotFound is returned when a job id has no persisted document
var ErrJobNotFound = errors.New("job not found")

// JobStorage persists whole job documents keyed by job id.
// Writes are full-document overwrites; callers read-modify-write. The
// storage layer does no per-id locking - the orchestrator serializes
// writers for a given id.
type JobStorage interface {
	// SaveJob durably persists the full document, overwriting any prior version
	SaveJob(ctx context.Context, job *models.Job) error

	// GetJob returns the document or ErrJobNotFound
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// ListJobs returns every persisted document
	ListJobs(ctx context.Context) ([]*models.Job, error)

	// ListActiveJobs returns documents in a non-terminal state
	// (queued or running)
	ListActiveJobs(ctx context.Context) ([]*models.Job, error)

	// DeleteJob removes a job document
	DeleteJob(ctx context.Context, jobID string) error
}

// StorageManager aggregates storage interfaces over one database connection
type StorageManager interface {
	JobStorage() JobStorage
	Close() error
}
