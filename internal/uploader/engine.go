// -----------------------------------------------------------------------
// Upload Engine - concurrent, cache-assisted artifact delivery
// -----------------------------------------------------------------------

package uploader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/campusworks/harvester/internal/common"
	"github.com/campusworks/harvester/internal/interfaces"
	"github.com/campusworks/harvester/internal/models"
)

// Engine uploads every artifact produced by a successful job to the remote
// object store. Traversal is hierarchical to bound fan-out and keep listing
// calls local: academic years sequentially, semesters within a year
// sequentially, student directories within a semester in concurrent batches.
type Engine struct {
	config *common.UploadConfig
	client *Client
	logger arbor.ILogger
}

// NewEngine creates an upload engine
func NewEngine(config *common.UploadConfig, client *Client, logger arbor.ILogger) interfaces.UploadEngine {
	return &Engine{
		config: config,
		client: client,
		logger: logger,
	}
}

// progressInterval is how often an active run logs its counters
const progressInterval = 5 * time.Second

// run carries the shared state of one upload run. Statistics and the listing
// cache are scoped here rather than process-wide so runs cannot leak into
// each other.
type run struct {
	bucket       string
	sourceDir    string
	skipExisting bool
	dryRun       bool
	progress     interfaces.UploadProgress

	statsMu sync.Mutex
	stats   models.UploadStats
	cache   *listingCache
}

// Run executes one upload run and returns its aggregate statistics.
// forceUpdate disables skip-existing for this run so every artifact is
// re-transmitted; onProgress (optional) is invoked after each student
// directory completes. Per-file failures are counted, not returned: an
// error return means the run could not start at all.
func (e *Engine) Run(ctx context.Context, forceUpdate bool, onProgress interfaces.UploadProgress) (*models.UploadStats, error) {
	sourceDir := e.config.SourceDir
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source directory %s does not exist or is not a directory", sourceDir)
	}

	totalFiles, totalStudents, totalBytes, err := countArtifacts(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan source directory: %w", err)
	}
	if totalFiles == 0 {
		return nil, fmt.Errorf("no JSON artifacts found in %s", sourceDir)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	r := &run{
		bucket:       e.config.Bucket,
		sourceDir:    sourceDir,
		skipExisting: e.config.SkipExisting && !forceUpdate,
		dryRun:       e.config.DryRun,
		progress:     onProgress,
		cache:        newListingCache(),
		stats: models.UploadStats{
			TotalFiles:    totalFiles,
			TotalStudents: totalStudents,
			TotalBytes:    totalBytes,
			StartTime:     time.Now(),
		},
	}

	e.logger.Info().
		Int("total_files", totalFiles).
		Int("total_students", totalStudents).
		Str("total_size", models.FormatSize(totalBytes)).
		Str("bucket", r.bucket).
		Bool("skip_existing", r.skipExisting).
		Bool("dry_run", r.dryRun).
		Msg("Starting artifact upload")

	e.ensureBucket(runCtx, r.bucket)

	// Periodic progress log for the lifetime of the run; the reporter
	// exits when runCtx is cancelled on return
	common.SafeGoWithContext(runCtx, e.logger, "upload-progress", func() {
		e.reportProgress(runCtx, r)
	})

	yearDirs, err := subdirectories(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	for _, yearDir := range yearDirs {
		e.processYear(runCtx, r, yearDir)
	}

	// Snapshot under the lock; the progress reporter may still be ticking
	// until the deferred cancel fires
	r.statsMu.Lock()
	r.stats.EndTime = time.Now()
	stats := r.stats
	r.statsMu.Unlock()

	e.logger.Info().
		Int("uploaded", stats.UploadedFiles).
		Int("skipped", stats.SkippedFiles).
		Int("failed", stats.FailedFiles).
		Str("uploaded_size", models.FormatSize(stats.UploadedBytes)).
		Str("duration", stats.Duration().String()).
		Msg("Artifact upload finished")

	return &stats, nil
}

// ensureBucket verifies the destination bucket exists, creating it when
// configured to. When verification is inconclusive the engine proceeds
// optimistically: a missing bucket surfaces per-file later, which is cheaper
// than aborting a run the store would have accepted.
func (e *Engine) ensureBucket(ctx context.Context, bucket string) {
	if e.config.CreateBucket {
		err := e.client.CreateBucket(ctx, bucket, false)
		switch {
		case err == nil:
			e.logger.Info().Str("bucket", bucket).Msg("Created bucket")
			return
		case err == ErrBucketExists:
			e.logger.Debug().Str("bucket", bucket).Msg("Bucket already exists")
			return
		default:
			e.logger.Warn().Err(err).Str("bucket", bucket).Msg("Failed to create bucket, checking existence")
		}
	}

	buckets, err := e.client.ListBuckets(ctx)
	if err != nil {
		// Fail-open policy: verification failed entirely, proceed anyway
		e.logger.Warn().Err(err).Str("bucket", bucket).
			Msg("Cannot verify bucket exists - proceeding optimistically")
		return
	}

	for _, b := range buckets {
		if b.Name == bucket {
			e.logger.Debug().Str("bucket", bucket).Msg("Bucket exists")
			return
		}
	}

	e.logger.Warn().Str("bucket", bucket).
		Msg("Bucket not found in listing - uploads may fail per-file")
}

// reportProgress logs the run counters every progressInterval until the
// run context is cancelled
func (e *Engine) reportProgress(ctx context.Context, r *run) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.statsMu.Lock()
			processed, total := r.stats.StudentsProcessed, r.stats.TotalStudents
			uploaded, skipped, failed := r.stats.UploadedFiles, r.stats.SkippedFiles, r.stats.FailedFiles
			r.statsMu.Unlock()

			e.logger.Info().
				Int("students_processed", processed).
				Int("total_students", total).
				Int("uploaded", uploaded).
				Int("skipped", skipped).
				Int("failed", failed).
				Msg("Upload in progress")
		}
	}
}

// processYear walks one academic-year directory, semester by semester
func (e *Engine) processYear(ctx context.Context, r *run, yearDir string) {
	semesterDirs, err := subdirectories(yearDir)
	if err != nil {
		e.logger.Error().Err(err).Str("dir", yearDir).Msg("Failed to read academic year directory")
		return
	}

	for _, semesterDir := range semesterDirs {
		e.processSemester(ctx, r, semesterDir)
	}
}

// processSemester uploads the student directories of one semester in
// concurrent batches of the configured size
func (e *Engine) processSemester(ctx context.Context, r *run, semesterDir string) {
	studentDirs, err := subdirectories(semesterDir)
	if err != nil {
		e.logger.Error().Err(err).Str("dir", semesterDir).Msg("Failed to read semester directory")
		return
	}

	batchSize := e.config.StudentBatch
	for i := 0; i < len(studentDirs); i += batchSize {
		end := i + batchSize
		if end > len(studentDirs) {
			end = len(studentDirs)
		}

		var wg sync.WaitGroup
		for _, studentDir := range studentDirs[i:end] {
			wg.Add(1)
			go func(dir string) {
				defer wg.Done()
				e.processStudent(ctx, r, dir)
			}(studentDir)
		}
		wg.Wait()
	}
}

// processStudent uploads every JSON artifact under one student directory
func (e *Engine) processStudent(ctx context.Context, r *run, studentDir string) {
	defer func() {
		r.statsMu.Lock()
		r.stats.StudentsProcessed++
		processed, total := r.stats.StudentsProcessed, r.stats.TotalStudents
		r.statsMu.Unlock()

		if r.progress != nil {
			r.progress(processed, total)
		}
	}()

	relDir, err := filepath.Rel(r.sourceDir, studentDir)
	if err != nil {
		e.logger.Error().Err(err).Str("dir", studentDir).Msg("Failed to resolve student directory")
		return
	}
	remoteDir := filepath.ToSlash(relDir)

	if r.skipExisting {
		e.cacheDirectory(ctx, r, remoteDir)
	}

	files, err := filepath.Glob(filepath.Join(studentDir, "*.json"))
	if err != nil || len(files) == 0 {
		return
	}

	if r.dryRun {
		var bytes int64
		for _, f := range files {
			if info, err := os.Stat(f); err == nil {
				bytes += info.Size()
			}
		}
		e.logger.Info().
			Int("files", len(files)).
			Str("dir", remoteDir).
			Msg("[DRY RUN] Would upload student artifacts")
		r.statsMu.Lock()
		r.stats.UploadedFiles += len(files)
		r.stats.UploadedBytes += bytes
		r.statsMu.Unlock()
		return
	}

	var wg sync.WaitGroup
	for _, file := range files {
		remotePath := remoteDir + "/" + filepath.Base(file)

		if r.skipExisting && r.cache.FileExists(r.bucket, remotePath) {
			e.recordSkip(r, file, remotePath)
			continue
		}

		wg.Add(1)
		go func(localPath, remotePath string) {
			defer wg.Done()
			e.uploadOne(ctx, r, localPath, remotePath)
		}(file, remotePath)
	}
	wg.Wait()
}

// cacheDirectory populates the listing cache for one remote directory.
// One listing call per directory keeps call volume proportional to
// directories rather than files. A failed listing is not retried for the
// same directory; the server's duplicate handling covers the gap.
func (e *Engine) cacheDirectory(ctx context.Context, r *run, remoteDir string) {
	if !r.cache.MarkDirListed(r.bucket, remoteDir) {
		return
	}

	objects, err := e.client.ListFolder(ctx, r.bucket, remoteDir)
	if err != nil {
		e.logger.Debug().Err(err).Str("dir", remoteDir).
			Msg("Could not list remote directory, assuming files absent")
		return
	}

	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, obj.Name)
	}
	r.cache.MarkFiles(r.bucket, remoteDir, names)

	e.logger.Debug().
		Int("count", len(names)).
		Str("dir", remoteDir).
		Msg("Cached remote directory listing")
}

// uploadOne pushes one artifact and records exactly one counter outcome.
// A failure here never aborts sibling uploads.
func (e *Engine) uploadOne(ctx context.Context, r *run, localPath, remotePath string) {
	info, err := os.Stat(localPath)
	if err != nil {
		e.recordFailure(r, localPath, remotePath, 0, err)
		return
	}
	size := info.Size()

	data, err := os.ReadFile(localPath)
	if err != nil {
		e.recordFailure(r, localPath, remotePath, size, err)
		return
	}

	outcome, err := e.client.UploadFile(ctx, r.bucket, remotePath, data)
	if err != nil {
		e.recordFailure(r, localPath, remotePath, size, err)
		return
	}

	r.cache.MarkFile(r.bucket, remotePath)

	r.statsMu.Lock()
	if outcome == OutcomeAlreadyExists {
		r.stats.SkippedFiles++
	} else {
		r.stats.UploadedFiles++
	}
	// Skipped files still count toward bytes accounted for
	r.stats.UploadedBytes += size
	r.statsMu.Unlock()
}

// recordSkip counts a cache-confirmed existing file as skipped
func (e *Engine) recordSkip(r *run, localPath, remotePath string) {
	var size int64
	if info, err := os.Stat(localPath); err == nil {
		size = info.Size()
	}

	r.statsMu.Lock()
	r.stats.SkippedFiles++
	r.stats.UploadedBytes += size
	r.statsMu.Unlock()
}

// recordFailure logs one per-file failure with full context and counts it
func (e *Engine) recordFailure(r *run, localPath, remotePath string, size int64, err error) {
	e.logger.Error().
		Err(err).
		Str("file", localPath).
		Str("remote_path", remotePath).
		Str("bucket", r.bucket).
		Str("size", models.FormatSize(size)).
		Str("operation", "upload_file").
		Msg("Failed to upload artifact")

	r.statsMu.Lock()
	r.stats.FailedFiles++
	r.statsMu.Unlock()
}

func (e *Engine) timeout() time.Duration {
	if d, err := time.ParseDuration(e.config.Timeout); err == nil && d > 0 {
		return d
	}
	return 300 * time.Second
}

// subdirectories returns the absolute paths of a directory's child dirs
func subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(dir, entry.Name()))
		}
	}
	return dirs, nil
}

// countArtifacts tallies the JSON files, student directories and total bytes
// under the source root. A student directory is a leaf directory that holds
// at least one JSON artifact.
func countArtifacts(sourceDir string) (files int, students int, bytes int64, err error) {
	jsonByDir := make(map[string]int)

	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		bytes += info.Size()
		jsonByDir[filepath.Dir(path)]++
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}

	students = len(jsonByDir)
	return files, students, bytes, nil
}
