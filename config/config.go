// Package config resolves tamperdetect settings from defaults, a YAML file,
// a .env file and TAMPERDETECT_* environment variables. CLI flags are applied
// on top by the caller before Validate is run.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// AppName is the application name used for XDG directory paths.
const AppName = "tamperdetect"

// Default configuration values.
const (
	// DefaultListenAddr matches the port the web form has always been served on.
	DefaultListenAddr = "127.0.0.1:5000"

	DefaultMaxUploadBytes = 32 << 20
	DefaultRequestTimeout = 60 * time.Second

	// StorageLocal writes outputs under UploadsDir.
	StorageLocal = "local"
	// StorageS3 writes outputs to an S3-compatible bucket.
	StorageS3 = "s3"
)

// Config holds all tamperdetect settings.
type Config struct {
	ListenAddr   string `yaml:"listen_addr"`
	OriginalsDir string `yaml:"originals_dir"`
	UploadsDir   string `yaml:"uploads_dir"`
	DatabasePath string `yaml:"database_path"`

	// MaxUploadBytes caps the request body of every upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// RequestTimeout bounds one comparison request end to end.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxConcurrent is the number of comparisons allowed to run at once.
	// Zero means signalhandler.GetOptimalProcs().
	MaxConcurrent int `yaml:"max_concurrent"`

	// MinRegionArea drops difference regions with a smaller bounding box.
	// Zero keeps every region.
	MinRegionArea int `yaml:"min_region_area"`

	LogFile string `yaml:"log_file"`
	Debug   bool   `yaml:"debug"`

	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig selects where comparison outputs are written.
type StorageConfig struct {
	Backend string   `yaml:"backend"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures the S3 output store. Credentials fall back to the
// default AWS chain when the keys are empty.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	PublicURL       string `yaml:"public_url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// DataDir returns the default data directory.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	dataDir := DataDir()
	return &Config{
		ListenAddr:     DefaultListenAddr,
		OriginalsDir:   filepath.Join(dataDir, "originals"),
		UploadsDir:     filepath.Join(dataDir, "uploads"),
		DatabasePath:   filepath.Join(dataDir, "tamperdetect.db"),
		MaxUploadBytes: DefaultMaxUploadBytes,
		RequestTimeout: DefaultRequestTimeout,
		Storage: StorageConfig{
			Backend: StorageLocal,
			S3:      S3Config{Region: "us-east-1"},
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return ErrMissingListenAddr
	}
	if c.OriginalsDir == "" || c.UploadsDir == "" {
		return ErrMissingDirectory
	}
	if c.DatabasePath == "" {
		return ErrMissingDatabasePath
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidMaxUpload
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxConcurrent < 0 {
		return ErrInvalidConcurrency
	}
	if c.MinRegionArea < 0 {
		return ErrInvalidMinRegionArea
	}

	switch c.Storage.Backend {
	case StorageLocal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return ErrMissingBucket
		}
	default:
		return ErrUnknownStorageBackend
	}

	return nil
}
