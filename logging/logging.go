package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger  = newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, zerolog.InfoLevel)
	logFile *os.File
	mu      sync.Mutex
	isSetup bool
)

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetupLogger routes log output to stderr and, when logFilePath is set, to a
// JSON log file. Debug messages are only emitted when debug is true.
func SetupLogger(logFilePath string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	if isSetup {
		return nil
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		w = zerolog.MultiLevelWriter(w, f)
	}

	logger = newLogger(w, level)
	logger.Debug().Msg("tamperdetect log started")

	isSetup = true
	return nil
}

// SetOutput replaces the log destination. Used by tests to capture output.
func SetOutput(w io.Writer, debug bool) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger = newLogger(w, level)
}

// CloseLogger closes the log file
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logger.Debug().Msg("tamperdetect log closed")
		logFile.Close()
		logFile = nil
	}
	logger = newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, zerolog.InfoLevel)
	isSetup = false
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	logger.Info().Msgf(format, args...)
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	logger.Debug().Msgf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	logger.Error().Msgf(format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	logger.Warn().Msgf(format, args...)
}

// LogComparison logs the outcome of one comparison
func LogComparison(id, candidate string, score float64, regions int, err error) {
	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		logger.Error().
			Str("comparison", id).
			Str("candidate", candidate).
			Err(err).
			Msg("comparison failed")
		return
	}

	logger.Info().
		Str("comparison", id).
		Str("candidate", candidate).
		Float64("score", score).
		Int("regions", regions).
		Msg("comparison complete")
}

// LogRequest logs one served HTTP request
func LogRequest(method, path string, status int, elapsed time.Duration) {
	mu.Lock()
	defer mu.Unlock()

	logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("request")
}
