package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 8000
	defaultUploadDir       = "./files"
	defaultProcessingSteps = 20
	defaultDurationSeconds = 15
	defaultTimeoutSeconds  = 300
	defaultSQLitePath      = "data/tasks.db"
)

// Supported task storage backends.
const (
	StorageInMemory = "in_memory"
	StorageSQLite   = "sqlite"
)

// Retention configures the eviction policy for old terminal tasks.
type Retention struct {
	Enabled       bool    `yaml:"enabled"`
	Schedule      string  `yaml:"schedule"`
	MaxAgeSeconds float64 `yaml:"max_age_seconds"`
}

// Config describes runtime configuration for the service.
// Durations are float seconds in YAML to match the deployment format;
// use the accessor methods for time.Duration values.
type Config struct {
	Port               int       `yaml:"port"`
	UploadDir          string    `yaml:"upload_dir"`
	ProcessingSteps    int       `yaml:"processing_steps"`
	DurationSeconds    float64   `yaml:"processing_duration_seconds"`
	EstimatedSeconds   float64   `yaml:"external_processing_estimated_duration_seconds"`
	TimeoutSeconds     float64   `yaml:"external_processing_timeout_seconds"`
	CORSAllowedOrigins []string  `yaml:"cors_allowed_origins"`
	TaskStorageType    string    `yaml:"task_storage_type"`
	SQLitePath         string    `yaml:"sqlite_path"`
	Retention          Retention `yaml:"retention"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:               defaultPort,
		UploadDir:          defaultUploadDir,
		ProcessingSteps:    defaultProcessingSteps,
		DurationSeconds:    defaultDurationSeconds,
		TimeoutSeconds:     defaultTimeoutSeconds,
		CORSAllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		TaskStorageType:    StorageInMemory,
		SQLitePath:         defaultSQLitePath,
		Retention: Retention{
			Enabled:       false,
			Schedule:      "@every 10m",
			MaxAgeSeconds: 86400,
		},
	}
}

// Load reads YAML config from the provided path. A missing or empty file
// yields defaults with no error; invalid values are an error and fatal at
// startup.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}

	// basic normalization
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = defaultUploadDir
	}
	if cfg.TaskStorageType == "" {
		cfg.TaskStorageType = StorageInMemory
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = defaultSQLitePath
	}
	// the external estimate, when present, wins over the generic duration key
	if cfg.EstimatedSeconds > 0 {
		cfg.DurationSeconds = cfg.EstimatedSeconds
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the processing core cannot run with.
func (c Config) Validate() error {
	if c.Port < 1 {
		return fmt.Errorf("invalid port: %d (must be >= 1)", c.Port)
	}
	if c.ProcessingSteps < 1 {
		return fmt.Errorf("invalid processing_steps: %d (must be >= 1)", c.ProcessingSteps)
	}
	if c.DurationSeconds <= 0 {
		return fmt.Errorf("invalid processing duration: %v (must be > 0)", c.DurationSeconds)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid external_processing_timeout_seconds: %v (must be > 0)", c.TimeoutSeconds)
	}
	if c.TaskStorageType != StorageInMemory && c.TaskStorageType != StorageSQLite {
		return fmt.Errorf("unknown task_storage_type: %q", c.TaskStorageType)
	}
	if c.Retention.Enabled {
		if c.Retention.Schedule == "" {
			return errors.New("retention enabled without a schedule")
		}
		if c.Retention.MaxAgeSeconds <= 0 {
			return fmt.Errorf("invalid retention max_age_seconds: %v (must be > 0)", c.Retention.MaxAgeSeconds)
		}
	}
	return nil
}

func (c Config) ProcessingDuration() time.Duration {
	return time.Duration(c.DurationSeconds * float64(time.Second))
}

func (c Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

func (c Config) RetentionMaxAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeSeconds * float64(time.Second))
}
