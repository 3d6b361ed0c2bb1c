package scraper

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/campusworks/harvester/internal/common"
	"github.com/campusworks/harvester/internal/models"
)

// writeScript installs a fake scraper executable under dir with the name the
// runner resolves for the stage.
func writeScript(t *testing.T, dir, stage, body string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}

	script := "#!/bin/sh\n" + body + "\n"
	path := filepath.Join(dir, scriptNames[stage])
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
}

func newTestRunner(dir string, timeout time.Duration) *Runner {
	config := &common.ScraperConfig{
		ScriptDir:  dir,
		Workers:    2,
		WorkerMode: "thread",
		Delay:      "1s",
		MaxRetries: 3,
	}
	return NewRunner(config, timeout, common.GetLogger()).(*Runner)
}

func TestRunner_Success(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, models.StageAttendance, `echo "Summary: Processed 10 students across 2 sections"`)

	r := newTestRunner(dir, 10*time.Second)
	result := r.Run(context.Background(), models.StageAttendance, "user", "pass", "2022-23")

	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	if result.Stats["summary"] == "" {
		t.Error("expected extracted summary stats")
	}
}

func TestRunner_AuthFailure(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, models.StageAttendance, `echo "Login failed"; exit 1`)

	r := newTestRunner(dir, 10*time.Second)
	result := r.Run(context.Background(), models.StageAttendance, "user", "bad", "2022-23")

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Classification != models.FailureAuth {
		t.Errorf("expected auth classification, got %s", result.Classification)
	}
}

func TestRunner_Timeout(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, models.StageAttendance, `sleep 10`)

	r := newTestRunner(dir, 200*time.Millisecond)
	result := r.Run(context.Background(), models.StageAttendance, "user", "pass", "2022-23")

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Classification != models.FailureTimeout {
		t.Errorf("expected timeout classification, got %s", result.Classification)
	}
}

func TestRunner_UnknownStage(t *testing.T) {
	r := newTestRunner(t.TempDir(), time.Second)
	result := r.Run(context.Background(), "bogus", "user", "pass", "2022-23")

	if result.Success {
		t.Fatal("expected failure for unknown stage")
	}
	if result.Classification != models.FailureGeneric {
		t.Errorf("expected generic classification, got %s", result.Classification)
	}
}

func TestRunner_MissingScript(t *testing.T) {
	r := newTestRunner(t.TempDir(), time.Second)
	result := r.Run(context.Background(), models.StageAttendance, "user", "pass", "2022-23")

	if result.Success {
		t.Fatal("expected failure for missing script")
	}
}

func TestRunner_BuildArgs(t *testing.T) {
	r := newTestRunner(t.TempDir(), time.Second)

	args := r.buildArgs(models.StageAttendance, "user", "pass", "2022-23")
	if !containsArg(args, "--max-retries") {
		t.Error("attendance scraper should receive --max-retries")
	}
	if !containsArg(args, "--no-csv") || !containsArg(args, "--headless") {
		t.Error("common flags missing")
	}

	args = r.buildArgs(models.StagePersonalDetails, "user", "pass", "2022-23")
	if containsArg(args, "--max-retries") {
		t.Error("personal details scraper must not receive --max-retries")
	}
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
