package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 20, config.Uploader.StudentBatch)
	assert.True(t, config.Uploader.SkipExisting)
	assert.Equal(t, "900s", config.Monitor.MaxRuntime)

	assert.Equal(t, 180*time.Second, config.ScraperTimeout())
	assert.Equal(t, 300*time.Second, config.UploadTimeout())
	assert.Equal(t, 15*time.Minute, config.MaxJobRuntime())

	require.NoError(t, config.Validate())
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.toml")
	content := `
[server]
port = 9090

[scraper]
timeout = "60s"

[uploader]
student_batch = 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 60*time.Second, config.ScraperTimeout())
	assert.Equal(t, 10, config.Uploader.StudentBatch)
	// Untouched sections keep defaults
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "900s", config.Monitor.MaxRuntime)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(base, []byte("[server]\nport = 9090\nhost = \"0.0.0.0\"\n"), 0644))
	require.NoError(t, os.WriteFile(override, []byte("[server]\nport = 7070\n"), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/harvester.toml")
	require.Error(t, err)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("HARVESTER_PORT", "6060")
	t.Setenv("HARVESTER_SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("HARVESTER_SUPABASE_KEY", "service-key")
	t.Setenv("HARVESTER_LOG_LEVEL", "debug")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 6060, config.Server.Port)
	assert.Equal(t, "https://example.supabase.co", config.Uploader.URL)
	assert.Equal(t, "service-key", config.Uploader.Key)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 5050, "127.0.0.1")
	assert.Equal(t, 5050, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)

	// Zero values leave the config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 5050, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scraper timeout", func(c *Config) { c.Scraper.Timeout = "soon" }},
		{"bad uploader timeout", func(c *Config) { c.Uploader.Timeout = "" }},
		{"bad monitor runtime", func(c *Config) { c.Monitor.MaxRuntime = "15 minutes" }},
		{"zero student batch", func(c *Config) { c.Uploader.StudentBatch = 0 }},
		{"zero scraper workers", func(c *Config) { c.Scraper.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestNewJobID(t *testing.T) {
	a, b := NewJobID(), NewJobID()

	assert.True(t, len(a) > 4 && a[:4] == "job_")
	assert.NotEqual(t, a, b)
}
