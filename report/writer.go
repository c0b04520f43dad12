// Package report renders comparison results for the CLI and the API.
package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"tamperdetect/types"
)

// Output formats accepted by NewWriter.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format.
var ErrUnknownFormat = errors.New("unknown report format: use text, json or markdown")

// Output is one generated image and where it can be fetched.
type Output struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Report describes a single comparison.
type Report struct {
	ComparisonID string            `json:"comparison_id"`
	Original     string            `json:"original"`
	Candidate    string            `json:"candidate"`
	ReferenceSHA string            `json:"reference_sha256,omitempty"`
	Score        float64           `json:"score"`
	Threshold    float64           `json:"threshold"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Regions      []types.Region    `json:"regions"`
	Outputs      []Output          `json:"outputs"`
	Exif         types.ExifSummary `json:"exif"`
	Hints        []string          `json:"hints,omitempty"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// Tampered reports whether any region of difference was found.
func (r *Report) Tampered() bool {
	return len(r.Regions) > 0
}

// Verdict is a one-line summary of the outcome.
func (r *Report) Verdict() string {
	if !r.Tampered() {
		return "no differences detected"
	}
	if len(r.Regions) == 1 {
		return "1 altered region detected"
	}
	return fmt.Sprintf("%d altered regions detected", len(r.Regions))
}

// OutputURL returns the URL of the named output, or "".
func (r *Report) OutputURL(name string) string {
	for _, o := range r.Outputs {
		if o.Name == name {
			return o.URL
		}
	}
	return ""
}

// Writer outputs a report in one format.
type Writer interface {
	Write(report *Report) (int, error)
}

// NewWriter returns the writer for format.
func NewWriter(format string, output io.Writer) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewTextWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
