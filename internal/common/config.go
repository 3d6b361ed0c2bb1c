package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Scraper     ScraperConfig `toml:"scraper"`
	Uploader    UploadConfig  `toml:"uploader"`
	Monitor     MonitorConfig `toml:"monitor"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// ScraperConfig controls how external scraper tasks are invoked
type ScraperConfig struct {
	ScriptDir  string `toml:"script_dir"`  // Directory containing the scraper executables
	Timeout    string `toml:"timeout"`     // Per-invocation wall-clock budget, e.g. "180s"
	Workers    int    `toml:"workers"`     // Worker count passed through to the scraper process
	WorkerMode string `toml:"worker_mode"` // "thread" or "process" (forwarded verbatim)
	Delay      string `toml:"delay"`       // Delay between portal requests, e.g. "1s"
	MaxRetries int    `toml:"max_retries"` // Retries the scraper applies per portal request
}

// UploadConfig controls the result-delivery engine
type UploadConfig struct {
	URL          string `toml:"url"`           // Object store base URL
	Key          string `toml:"key"`           // API key (usually supplied via env)
	Bucket       string `toml:"bucket"`        // Destination bucket name
	SourceDir    string `toml:"source_dir"`    // Local artifact root
	Workers      int    `toml:"workers"`       // Max concurrent requests to the store
	StudentBatch int    `toml:"student_batch"` // Student directories uploaded in parallel per batch
	SkipExisting bool   `toml:"skip_existing"` // Skip files already present at the destination
	CreateBucket bool   `toml:"create_bucket"` // Create the bucket if it does not exist
	DryRun       bool   `toml:"dry_run"`       // Compute but do not transmit
	Timeout      string `toml:"timeout"`       // Per-run budget, e.g. "300s"
}

// MonitorConfig controls stalled-job detection
type MonitorConfig struct {
	MaxRuntime    string `toml:"max_runtime"`    // Maximum job runtime before it is reaped, e.g. "900s"
	SweepSchedule string `toml:"sweep_schedule"` // Cron schedule for background sweeps
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/harvester",
				ResetOnStartup: false,
			},
		},
		Scraper: ScraperConfig{
			ScriptDir:  "./scrapers",
			Timeout:    "180s",
			Workers:    2,
			WorkerMode: "thread",
			Delay:      "1s",
			MaxRetries: 3,
		},
		Uploader: UploadConfig{
			Bucket:       "student-data",
			SourceDir:    "student_details",
			Workers:      16,
			StudentBatch: 20,
			SkipExisting: true,
			CreateBucket: true,
			DryRun:       false,
			Timeout:      "300s",
		},
		Monitor: MonitorConfig{
			MaxRuntime:    "900s",
			SweepSchedule: "@every 1m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later config files override earlier ones; environment variables override files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("HARVESTER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("HARVESTER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("HARVESTER_SUPABASE_URL"); v != "" {
		config.Uploader.URL = v
	}
	if v := os.Getenv("HARVESTER_SUPABASE_KEY"); v != "" {
		config.Uploader.Key = v
	}
	if v := os.Getenv("HARVESTER_SUPABASE_BUCKET"); v != "" {
		config.Uploader.Bucket = v
	}
	if v := os.Getenv("HARVESTER_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks duration fields and bounds so failures surface at startup
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Scraper.Timeout); err != nil {
		return fmt.Errorf("invalid scraper.timeout %q: %w", c.Scraper.Timeout, err)
	}
	if _, err := time.ParseDuration(c.Uploader.Timeout); err != nil {
		return fmt.Errorf("invalid uploader.timeout %q: %w", c.Uploader.Timeout, err)
	}
	if _, err := time.ParseDuration(c.Monitor.MaxRuntime); err != nil {
		return fmt.Errorf("invalid monitor.max_runtime %q: %w", c.Monitor.MaxRuntime, err)
	}
	if c.Uploader.StudentBatch <= 0 {
		return fmt.Errorf("uploader.student_batch must be positive, got %d", c.Uploader.StudentBatch)
	}
	if c.Scraper.Workers <= 0 {
		return fmt.Errorf("scraper.workers must be positive, got %d", c.Scraper.Workers)
	}
	return nil
}

// ScraperTimeout returns the parsed per-invocation scraper timeout
func (c *Config) ScraperTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Scraper.Timeout)
	return d
}

// UploadTimeout returns the parsed per-run upload timeout
func (c *Config) UploadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Uploader.Timeout)
	return d
}

// MaxJobRuntime returns the parsed stall threshold
func (c *Config) MaxJobRuntime() time.Duration {
	d, _ := time.ParseDuration(c.Monitor.MaxRuntime)
	return d
}
