// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/j-veylop/green-ai-tracker/internal/carbon"
	"github.com/j-veylop/green-ai-tracker/internal/logger"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	DataDir         string
	StoreBackend    string
	DatabasePath    string
	CalibrationPath string
	AlertGrade      string
	Retention       time.Duration
	SyncInterval    time.Duration
	Notify          bool
	Calibration     carbon.Calibration
	Log             logger.Options
}

// Default values
const (
	defaultRetentionDays = 90
	defaultSyncInterval  = time.Second
	defaultAlertGrade    = "D"
	defaultLogMaxSizeMB  = 20
	defaultLogMaxBackups = 5
	defaultLogMaxAgeDays = 30
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	dataDir := getEnvString("GAT_DATA_DIR", getDefaultDataDir())

	cfg := &Config{
		DataDir:         dataDir,
		StoreBackend:    strings.ToLower(getEnvString("GAT_STORE_BACKEND", BackendFile)),
		DatabasePath:    getEnvString("GAT_DATABASE_PATH", filepath.Join(dataDir, "metrics.db")),
		CalibrationPath: getEnvString("GAT_CALIBRATION_PATH", getDefaultCalibrationPath()),
		AlertGrade:      strings.ToUpper(getEnvString("GAT_ALERT_GRADE", defaultAlertGrade)),
		Retention:       time.Duration(getEnvInt("GAT_RETENTION_DAYS", defaultRetentionDays)) * 24 * time.Hour,
		SyncInterval:    getEnvDuration("GAT_SYNC_INTERVAL", defaultSyncInterval),
		Notify:          getEnvBool("GAT_NOTIFY", false),
		Log: logger.Options{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Dir:        getEnvString("LOG_DIR", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", defaultLogMaxSizeMB),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", defaultLogMaxBackups),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", defaultLogMaxAgeDays),
			Compress:   getEnvBool("LOG_COMPRESS", false),
			NoColor:    getEnvBool("NO_COLOR", false),
		},
	}

	switch cfg.StoreBackend {
	case BackendFile, BackendSQLite:
	default:
		return nil, fmt.Errorf("GAT_STORE_BACKEND must be %q or %q, got %q", BackendFile, BackendSQLite, cfg.StoreBackend)
	}

	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("GAT_RETENTION_DAYS must be positive")
	}

	cal, err := LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		return nil, err
	}
	cfg.Calibration = cal

	// Ensure data directory exists
	if err := ensureDir(cfg.DataDir); err != nil {
		return nil, err
	}

	// Ensure database directory exists
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "green-ai-tracker", ".env"),
			filepath.Join(home, ".green-ai-tracker", ".env"),
		)
	}

	// Parent directories (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		parent := filepath.Dir(cwd)
		paths = append(paths, filepath.Join(parent, ".env"))
	}

	return paths
}

// getDefaultDataDir returns the default directory for metric partitions.
func getDefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "green-metrics"
	}
	return filepath.Join(home, ".config", "green-ai-tracker", "metrics")
}

// getDefaultCalibrationPath returns the default calibration file location.
func getDefaultCalibrationPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "green-ai-tracker", "calibration.yaml")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvBool retrieves a boolean environment variable or returns the default.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes" || value == "y"
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
