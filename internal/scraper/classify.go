// -----------------------------------------------------------------------
// Outcome classification - explicit failure taxonomy for scraper output
// -----------------------------------------------------------------------

package scraper

import (
	"fmt"
	"strings"

	"github.com/campusworks/harvester/internal/models"
)

// failureTailLen bounds how much captured output a generic failure message carries
const failureTailLen = 1000

// Known output markers, checked in taxonomy priority order after the
// wall-clock timeout check.
var (
	authMarkers = []string{
		"Login failed",
		"Authentication failed",
		"Invalid credentials",
	}
	connMarkers = []string{
		"Connection refused",
		"Failed to establish a new connection",
	}
)

// successOverrides lists, per task, output markers that reclassify a non-zero
// exit as success. The personal-details scraper's exit code is not
// authoritative by itself; its own completion banner is.
var successOverrides = map[string][]string{
	models.StagePersonalDetails: {
		"PERSONAL DETAILS SCRAPING COMPLETED SUCCESSFULLY",
		"Personal details scraping completed successfully",
		"Personal details scraping completed with no data found",
	},
}

// Classify turns a finished task invocation into a StageResult.
// Priority order: wall-clock timeout, success (exit zero or override marker),
// authentication failure, connectivity failure, textual timeout, generic.
func Classify(stage string, runErr error, timedOut bool, stdout, stderr string) *models.StageResult {
	if timedOut {
		return &models.StageResult{
			Success:        false,
			Message:        fmt.Sprintf("Timeout error in %s scraper. The portal is responding slowly.", stage),
			Classification: models.FailureTimeout,
			Stdout:         stdout,
			Stderr:         stderr,
		}
	}

	if runErr == nil {
		return &models.StageResult{
			Success: true,
			Message: fmt.Sprintf("%s scraper completed successfully", stage),
			Stats:   ParseStats(stdout),
			Stdout:  stdout,
			Stderr:  stderr,
		}
	}

	// Non-zero exit, but some tasks declare success in their output
	for _, marker := range successOverrides[stage] {
		if strings.Contains(stdout, marker) {
			return &models.StageResult{
				Success: true,
				Message: fmt.Sprintf("%s scraper completed successfully despite non-zero exit code", stage),
				Stats:   ParseStats(stdout),
				Stdout:  stdout,
				Stderr:  stderr,
			}
		}
	}

	combined := stdout + "\n" + stderr

	if containsAny(combined, authMarkers) {
		return &models.StageResult{
			Success:        false,
			Message:        fmt.Sprintf("Authentication failed for %s scraper. Please check your credentials.", stage),
			Classification: models.FailureAuth,
			Stdout:         stdout,
			Stderr:         stderr,
		}
	}

	if containsAny(combined, connMarkers) {
		return &models.StageResult{
			Success:        false,
			Message:        fmt.Sprintf("Connection error in %s scraper. The portal may be down or unreachable.", stage),
			Classification: models.FailureConnectivity,
			Stdout:         stdout,
			Stderr:         stderr,
		}
	}

	if strings.Contains(stderr, "Timeout") {
		return &models.StageResult{
			Success:        false,
			Message:        fmt.Sprintf("Timeout error in %s scraper. The portal is responding slowly.", stage),
			Classification: models.FailureTimeout,
			Stdout:         stdout,
			Stderr:         stderr,
		}
	}

	return &models.StageResult{
		Success:        false,
		Message:        fmt.Sprintf("Error running %s scraper: %v: %s", stage, runErr, outputTail(combined, failureTailLen)),
		Classification: models.FailureGeneric,
		Stdout:         stdout,
		Stderr:         stderr,
	}
}

// ParseStats extracts structured counters from scraper output lines
func ParseStats(stdout string) map[string]string {
	stats := make(map[string]string)
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "Summary: Processed") && strings.Contains(line, "students across"):
			stats["summary"] = line
		case strings.Contains(line, "Processed") && strings.Contains(line, "students"):
			stats["processed"] = line
		case strings.Contains(line, "Combinations with data"):
			stats["combinations"] = line
		case strings.Contains(line, "Total success:"):
			stats["success_details"] = line
		}
	}
	if len(stats) == 0 {
		return nil
	}
	return stats
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// outputTail returns the last n characters of s for diagnostic messages
func outputTail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
