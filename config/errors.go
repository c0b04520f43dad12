package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrMissingListenAddr is returned when no listen address is set.
	ErrMissingListenAddr = errors.New("listen address is required")

	// ErrMissingDirectory is returned when the originals or uploads directory is empty.
	ErrMissingDirectory = errors.New("originals and uploads directories are required")

	// ErrMissingDatabasePath is returned when no database path is set.
	ErrMissingDatabasePath = errors.New("database path is required")

	// ErrInvalidMaxUpload is returned when the upload limit is not positive.
	ErrInvalidMaxUpload = errors.New("invalid max upload size: must be positive")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid request timeout: must be positive")

	// ErrInvalidConcurrency is returned when max concurrent comparisons is negative.
	ErrInvalidConcurrency = errors.New("invalid max concurrent comparisons: must be non-negative")

	// ErrInvalidMinRegionArea is returned when the minimum region area is negative.
	ErrInvalidMinRegionArea = errors.New("invalid min region area: must be non-negative")

	// ErrUnknownStorageBackend is returned for a storage backend other than local or s3.
	ErrUnknownStorageBackend = errors.New("unknown storage backend: use local or s3")

	// ErrMissingBucket is returned when the s3 backend is selected without a bucket.
	ErrMissingBucket = errors.New("s3 storage requires a bucket")
)

// Loading errors.
var (
	// ErrConfigNotFound is returned when an explicitly requested configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidEnv is returned when an environment override cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment value")
)
