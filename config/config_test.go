package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Storage.Backend != StorageLocal {
		t.Errorf("Backend = %q, want %q", cfg.Storage.Backend, StorageLocal)
	}
	if filepath.Dir(cfg.DatabasePath) != DataDir() {
		t.Errorf("DatabasePath = %q, want it under %q", cfg.DatabasePath, DataDir())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }, ErrMissingListenAddr},
		{"empty uploads dir", func(c *Config) { c.UploadsDir = "" }, ErrMissingDirectory},
		{"empty database", func(c *Config) { c.DatabasePath = "" }, ErrMissingDatabasePath},
		{"zero upload limit", func(c *Config) { c.MaxUploadBytes = 0 }, ErrInvalidMaxUpload},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, ErrInvalidTimeout},
		{"negative concurrency", func(c *Config) { c.MaxConcurrent = -1 }, ErrInvalidConcurrency},
		{"negative min area", func(c *Config) { c.MinRegionArea = -5 }, ErrInvalidMinRegionArea},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, ErrUnknownStorageBackend},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = StorageS3 }, ErrMissingBucket},
		{"s3 with bucket", func(c *Config) {
			c.Storage.Backend = StorageS3
			c.Storage.S3.Bucket = "outputs"
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `listen_addr: ":9000"
originals_dir: /srv/originals
request_timeout: 15s
min_region_area: 25
storage:
  backend: s3
  s3:
    bucket: evidence
    use_path_style: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{ConfigPath: path, EnvFile: filepath.Join(dir, "missing.env")})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":9000" || cfg.OriginalsDir != "/srv/originals" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout)
	}
	if cfg.MinRegionArea != 25 {
		t.Errorf("MinRegionArea = %d, want 25", cfg.MinRegionArea)
	}
	if cfg.Storage.Backend != StorageS3 || cfg.Storage.S3.Bucket != "evidence" || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	// Untouched keys keep their defaults.
	if cfg.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("MaxUploadBytes = %d, want default", cfg.MaxUploadBytes)
	}
	if cfg.Storage.S3.Region != "us-east-1" {
		t.Errorf("S3.Region = %q, want default", cfg.Storage.S3.Region)
	}
}

func TestLoadMissingExplicitConfig(t *testing.T) {
	_, err := Load(LoadOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")})
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() error = %v, want ErrConfigNotFound", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("TAMPERDETECT_UPLOADS_DIR=/from/dotenv\nTAMPERDETECT_MAX_CONCURRENT=3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TAMPERDETECT_LISTEN_ADDR", ":7000")
	t.Setenv("TAMPERDETECT_MAX_CONCURRENT", "5")
	t.Setenv("TAMPERDETECT_DEBUG", "true")
	// godotenv sets variables process-wide; register them so they are restored.
	t.Setenv("TAMPERDETECT_UPLOADS_DIR", "")
	os.Unsetenv("TAMPERDETECT_UPLOADS_DIR")

	cfg, err := Load(LoadOptions{ConfigPath: writeEmptyConfig(t, dir), EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want :7000", cfg.ListenAddr)
	}
	if cfg.UploadsDir != "/from/dotenv" {
		t.Errorf("UploadsDir = %q, want /from/dotenv", cfg.UploadsDir)
	}
	// The real environment wins over the dotenv file.
	if cfg.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.MaxConcurrent)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
}

func TestApplyEnvInvalidValues(t *testing.T) {
	env := map[string]string{
		"TAMPERDETECT_MAX_UPLOAD_BYTES": "lots",
		"TAMPERDETECT_REQUEST_TIMEOUT":  "soon",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	err := applyEnv(Default(), lookup)
	if !errors.Is(err, ErrInvalidEnv) {
		t.Fatalf("applyEnv() error = %v, want ErrInvalidEnv", err)
	}
}

func writeEmptyConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
