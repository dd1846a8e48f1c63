package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/j-veylop/green-ai-tracker/internal/carbon"
)

func TestGetEnvString(t *testing.T) {
	key := "TEST_ENV_STRING"
	val := "test_value"
	t.Setenv(key, val)

	if got := getEnvString(key, "default"); got != val {
		t.Errorf("getEnvString() = %q, want %q", got, val)
	}

	if got := getEnvString("NON_EXISTENT", "default"); got != "default" {
		t.Errorf("getEnvString() = %q, want %q", got, "default")
	}
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_ENV_DURATION"

	tests := []struct {
		name       string
		envVal     string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"ValidDuration", "1m", time.Second, time.Minute},
		{"ValidSeconds", "60", time.Second, 60 * time.Second},
		{"Invalid", "invalid", time.Second, time.Second},
		{"Empty", "", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(key, tt.envVal)
			if got := getEnvDuration(key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvIntAndBool(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_BOOL", "Yes")

	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() = %d, want default 7", got)
	}
	if !getEnvBool("TEST_BOOL", false) {
		t.Error("getEnvBool() should parse Yes as true")
	}
	if getEnvBool("TEST_MISSING_BOOL", false) {
		t.Error("getEnvBool() should fall back to default")
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "dir")

	if err := ensureDir(path); err != nil {
		t.Fatalf("ensureDir() failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("directory was not created")
	}

	if err := ensureDir(""); err != nil {
		t.Error("ensureDir(\"\") should not error")
	}
}

func TestGetEnvPaths(t *testing.T) {
	paths := getEnvPaths()
	if len(paths) == 0 {
		t.Error("getEnvPaths() returned empty list")
	}

	cwd, _ := os.Getwd()
	found := false
	for _, p := range paths {
		if p == filepath.Join(cwd, ".env") {
			found = true
			break
		}
	}
	if !found {
		t.Error("getEnvPaths() missing current directory .env")
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("GAT_DATA_DIR", filepath.Join(tmpDir, "metrics"))
	t.Setenv("GAT_CALIBRATION_PATH", filepath.Join(tmpDir, "missing.yaml"))
	t.Setenv("GAT_STORE_BACKEND", "")
	t.Setenv("GAT_RETENTION_DAYS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.StoreBackend != BackendFile {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendFile)
	}
	if cfg.Retention != defaultRetentionDays*24*time.Hour {
		t.Errorf("Retention = %v, want %d days", cfg.Retention, defaultRetentionDays)
	}
	if cfg.DatabasePath != filepath.Join(tmpDir, "metrics", "metrics.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.Calibration != carbon.DefaultCalibration() {
		t.Errorf("Calibration = %+v, want defaults", cfg.Calibration)
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("GAT_DATA_DIR", t.TempDir())
	t.Setenv("GAT_STORE_BACKEND", "postgres")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject unknown backends")
	}
}

func TestLoad_InvalidRetention(t *testing.T) {
	t.Setenv("GAT_DATA_DIR", t.TempDir())
	t.Setenv("GAT_STORE_BACKEND", "sqlite")
	t.Setenv("GAT_RETENTION_DAYS", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject a zero retention")
	}
}

func TestLoad_WithEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	content := "GAT_STORE_BACKEND=sqlite\nGAT_DATA_DIR=" + filepath.Join(tmpDir, "data") + "\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Chdir(tmpDir)

	// godotenv does not override variables that are already set
	os.Unsetenv("GAT_STORE_BACKEND")
	os.Unsetenv("GAT_DATA_DIR")
	t.Cleanup(func() {
		os.Unsetenv("GAT_STORE_BACKEND")
		os.Unsetenv("GAT_DATA_DIR")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %q, want sqlite", cfg.StoreBackend)
	}
}

func TestLoadCalibration_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	content := `
per_token_grams: 0.00001
cache_discount: 0.5
thresholds:
  excellent: 0.001
  good: 0.002
  moderate: 0.004
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cal, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration() failed: %v", err)
	}
	if cal.PerTokenGrams != 0.00001 || cal.CacheDiscount != 0.5 {
		t.Errorf("unexpected calibration: %+v", cal)
	}
	if cal.NetworkOverheadGrams != carbon.DefaultNetworkOverheadGrams {
		t.Errorf("NetworkOverheadGrams = %v, want default", cal.NetworkOverheadGrams)
	}
	if cal.Thresholds.Moderate != 0.004 {
		t.Errorf("Thresholds.Moderate = %v, want 0.004", cal.Thresholds.Moderate)
	}
}

func TestLoadCalibration_Missing(t *testing.T) {
	cal, err := LoadCalibration(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadCalibration() failed: %v", err)
	}
	if cal != carbon.DefaultCalibration() {
		t.Error("missing file should yield defaults")
	}
}

func TestParseCalibration_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Garbage", "per_token_grams: [1, 2"},
		{"DiscountTooLarge", "cache_discount: 2"},
		{"ThresholdsUnordered", "thresholds:\n  excellent: 0.01\n  good: 0.005\n  moderate: 0.02\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseCalibration([]byte(tt.content)); err == nil {
				t.Errorf("parseCalibration() should fail for %s", tt.name)
			}
		})
	}
}
