package utils

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// IsImageFile checks if a file extension belongs to a decodable image file
func IsImageFile(path string) bool {
	switch GetFileFormat(path) {
	case "jpg", "jpeg", "png", "gif", "bmp", "webp", "tif", "tiff":
		return true
	default:
		return false
	}
}

// GetFileFormat returns the lowercase file extension without the dot
func GetFileFormat(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// ContentType returns the MIME type for a generated output file
func ContentType(name string) string {
	switch GetFileFormat(name) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "json":
		return "application/json"
	case "md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// SanitizeFilename strips directories and anything outside [A-Za-z0-9._-]
// from an uploaded file name. An empty result becomes fallback.
func SanitizeFilename(name, fallback string) string {
	// Browsers on Windows may send the full client path.
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}

	clean := strings.TrimLeft(b.String(), ".")
	if clean == "" {
		return fallback
	}
	return clean
}

// NewComparisonID returns a short unique ID used to prefix output files
func NewComparisonID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return time.Now().UTC().Format("20060102T150405") + "-" + hex.EncodeToString(buf[:])
}

// OutputName joins a comparison ID and an output file name
func OutputName(comparisonID, name string) string {
	return comparisonID + "_" + name
}
