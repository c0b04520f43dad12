// Package metadata extracts the EXIF tags of a candidate image that hint at
// editing: the writing software and the capture/modify timestamps.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
	exif "github.com/dsoprea/go-exif/v3"
	"github.com/samber/lo"

	"tamperdetect/logging"
	"tamperdetect/types"
)

// editingSoftware lists substrings of Software tags written by image editors.
var editingSoftware = []string{
	"photoshop", "lightroom", "gimp", "affinity", "pixelmator", "paint.net",
	"snapseed", "picsart", "canva", "krita", "facetune",
}

// Extractor reads EXIF data. The embedded parser handles JPEG, TIFF, PNG
// eXIf and HEIC; the external exiftool binary is used as a fallback for
// anything else when it is installed.
type Extractor struct {
	useExiftool bool

	once sync.Once
	mu   sync.Mutex
	et   *exiftool.Exiftool
	err  error
}

// NewExtractor returns an Extractor. When useExiftool is true and the
// exiftool binary is on PATH, it is used for files the embedded parser
// cannot read.
func NewExtractor(useExiftool bool) *Extractor {
	if useExiftool {
		if _, err := exec.LookPath("exiftool"); err != nil {
			logging.DebugLog("exiftool not found on PATH, using embedded EXIF parser only")
			useExiftool = false
		}
	}
	return &Extractor{useExiftool: useExiftool}
}

// Close stops the exiftool process if one was started.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.et != nil {
		err := e.et.Close()
		e.et = nil
		return err
	}
	return nil
}

// Summarize extracts the EXIF summary of an encoded image. Images without
// EXIF yield an empty summary and no error.
func (e *Extractor) Summarize(ctx context.Context, data []byte, name string) (types.ExifSummary, error) {
	summary, err := ExtractEmbedded(data)
	if err == nil && !summary.Empty() {
		return summary, nil
	}
	if err != nil {
		logging.DebugLog("Embedded EXIF parse failed for %s: %v", name, err)
	}

	if !e.useExiftool || ctx.Err() != nil {
		return summary, nil
	}

	return e.extractWithExiftool(data, name)
}

// ExtractEmbedded parses EXIF with the pure-Go parser.
func ExtractEmbedded(data []byte) (types.ExifSummary, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return types.ExifSummary{}, nil
		}
		return types.ExifSummary{}, fmt.Errorf("failed to locate EXIF: %w", err)
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return types.ExifSummary{}, fmt.Errorf("failed to parse EXIF: %w", err)
	}

	fields := make(map[string]string, len(entries))
	for _, entry := range entries {
		// First occurrence wins; IFD0 precedes the thumbnail IFD.
		if _, seen := fields[entry.TagName]; !seen {
			fields[entry.TagName] = entry.Formatted
		}
	}
	return summaryFromFields(fields), nil
}

// extractWithExiftool writes data to a temp file and runs exiftool on it
func (e *Extractor) extractWithExiftool(data []byte, name string) (types.ExifSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.once.Do(func() {
		e.et, e.err = exiftool.NewExiftool()
	})
	if e.err != nil {
		return types.ExifSummary{}, fmt.Errorf("failed to start exiftool: %w", e.err)
	}
	if e.et == nil {
		return types.ExifSummary{}, nil
	}

	tmp, err := os.CreateTemp("", "tamperdetect-exif-*"+filepath.Ext(name))
	if err != nil {
		return types.ExifSummary{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return types.ExifSummary{}, fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	infos := e.et.ExtractMetadata(tmp.Name())
	if len(infos) == 0 {
		return types.ExifSummary{}, nil
	}
	if infos[0].Err != nil {
		return types.ExifSummary{}, fmt.Errorf("exiftool failed for %s: %w", name, infos[0].Err)
	}

	fields := make(map[string]string, len(infos[0].Fields))
	for k, v := range infos[0].Fields {
		fields[k] = fmt.Sprint(v)
	}
	return summaryFromFields(fields), nil
}

// summaryFromFields maps tag names from either parser onto the summary.
// exiftool reports the IFD0 DateTime tag as ModifyDate.
func summaryFromFields(fields map[string]string) types.ExifSummary {
	get := func(name string) string {
		return strings.TrimSpace(strings.Trim(fields[name], "\x00\""))
	}
	return types.ExifSummary{
		Software:         get("Software"),
		Make:             get("Make"),
		Model:            get("Model"),
		DateTime:         get("DateTime"),
		DateTimeOriginal: get("DateTimeOriginal"),
		ModifyDate:       get("ModifyDate"),
	}
}

// EditingHints lists human-readable reasons the metadata suggests the image
// was edited after capture. It does not prove tampering.
func EditingHints(s types.ExifSummary) []string {
	var hints []string

	software := strings.ToLower(s.Software)
	if editor, ok := lo.Find(editingSoftware, func(name string) bool {
		return strings.Contains(software, name)
	}); ok {
		hints = append(hints, fmt.Sprintf("written by editing software (%s)", editor))
	}

	modified := lo.Ternary(s.ModifyDate != "", s.ModifyDate, s.DateTime)
	if s.DateTimeOriginal != "" && modified != "" && modified != s.DateTimeOriginal {
		hints = append(hints, fmt.Sprintf("modified at %s after capture at %s", modified, s.DateTimeOriginal))
	}

	return hints
}
