package interfaces

import (
	"context"

	"github.com/campusworks/harvester/internal/models"
)

// TaskRunner invokes one external collection task with a bounded timeout and
// classifies its outcome. Implementations never return an error: every
// failure mode is expressed in the StageResult so the orchestrator can
// record it on the job.
type TaskRunner interface {
	Run(ctx context.Context, stage, username, password, academicYear string) *models.StageResult
}

// UploadProgress receives the students-processed count while an upload run
// is active. Implementations must be safe for concurrent invocation; calls
// arrive from the engine's upload goroutines.
type UploadProgress func(processed, total int)

// UploadEngine pushes the artifacts produced by a successful job to the
// remote object store and reports aggregate statistics. onProgress may be
// nil; when set it is invoked once per processed student directory.
type UploadEngine interface {
	Run(ctx context.Context, forceUpdate bool, onProgress UploadProgress) (*models.UploadStats, error)
}
