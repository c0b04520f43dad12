package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file name looked up in the working directory.
const DefaultConfigFile = ".tamperdetect.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TAMPERDETECT_"

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigPath is an explicit YAML file. A missing explicit file is an error.
	ConfigPath string
	// EnvFile is a dotenv file; defaults to ".env" and may be absent.
	EnvFile string
}

// Load builds a Config from defaults, the YAML file, the .env file and the
// environment, in that order. Flags are applied by the caller.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path, err := FindConfigFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Missing .env is normal; variables already set in the environment win.
	_ = godotenv.Load(envFile)

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. configPath, when given (must exist)
// 2. .tamperdetect.yaml in the current directory
// 3. tamperdetect/config.yaml under the XDG config home
//
// It returns an empty path when no file is found.
func FindConfigFile(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return configPath, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig, nil
		}
	}

	xdgConfig := filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	return "", nil
}

// loadYAML overlays the file's values on cfg
func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays TAMPERDETECT_* variables on cfg
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("ORIGINALS_DIR", &cfg.OriginalsDir)
	str("UPLOADS_DIR", &cfg.UploadsDir)
	str("DATABASE_PATH", &cfg.DatabasePath)
	str("LOG_FILE", &cfg.LogFile)
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("S3_REGION", &cfg.Storage.S3.Region)
	str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	str("S3_PREFIX", &cfg.Storage.S3.Prefix)
	str("S3_PUBLIC_URL", &cfg.Storage.S3.PublicURL)
	str("S3_ACCESS_KEY_ID", &cfg.Storage.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &cfg.Storage.S3.SecretAccessKey)

	var errs []error
	parse := func(name string, set func(string) error) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		if err := set(v); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s%s=%q", ErrInvalidEnv, EnvPrefix, name, v))
		}
	}

	parse("MAX_UPLOAD_BYTES", func(v string) (err error) {
		cfg.MaxUploadBytes, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	parse("REQUEST_TIMEOUT", func(v string) (err error) {
		cfg.RequestTimeout, err = time.ParseDuration(v)
		return err
	})
	parse("MAX_CONCURRENT", func(v string) (err error) {
		cfg.MaxConcurrent, err = strconv.Atoi(v)
		return err
	})
	parse("MIN_REGION_AREA", func(v string) (err error) {
		cfg.MinRegionArea, err = strconv.Atoi(v)
		return err
	})
	parse("DEBUG", func(v string) (err error) {
		cfg.Debug, err = strconv.ParseBool(v)
		return err
	})
	parse("S3_USE_PATH_STYLE", func(v string) (err error) {
		cfg.Storage.S3.UsePathStyle, err = strconv.ParseBool(v)
		return err
	})

	return errors.Join(errs...)
}
