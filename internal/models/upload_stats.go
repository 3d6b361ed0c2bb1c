package models

import (
	"fmt"
	"time"
)

// UploadStats are process-wide counters for one upload run. All concurrent
// upload tasks mutate a single instance under the engine's stats lock; the
// struct itself carries no synchronization and is discarded at run end.
type UploadStats struct {
	TotalFiles        int       `json:"total_files"`
	UploadedFiles     int       `json:"uploaded_files"`
	SkippedFiles      int       `json:"skipped_files"`
	FailedFiles       int       `json:"failed_files"`
	TotalBytes        int64     `json:"total_bytes"`
	UploadedBytes     int64     `json:"uploaded_bytes"`
	TotalStudents     int       `json:"total_students"`
	StudentsProcessed int       `json:"students_processed"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
}

// Duration returns the elapsed time of the run
func (s *UploadStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary renders a one-line human summary for job messages
func (s *UploadStats) Summary() string {
	return fmt.Sprintf("Uploaded %d files, skipped %d, failed %d (%s of %s) across %d students",
		s.UploadedFiles, s.SkippedFiles, s.FailedFiles,
		FormatSize(s.UploadedBytes), FormatSize(s.TotalBytes), s.StudentsProcessed)
}

// FormatSize formats a byte count as a human-readable string
func FormatSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(size)/1024)
	case size < 1024*1024*1024:
		return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
	default:
		return fmt.Sprintf("%.2f GB", float64(size)/(1024*1024*1024))
	}
}
