package report

import (
	"fmt"
	"io"
	"strings"
)

// TextWriter outputs a plain text report for terminals.
type TextWriter struct {
	baseWriter
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer) *TextWriter {
	return &TextWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report.
func (w *TextWriter) Write(report *Report) (int, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Comparison %s\n", report.ComparisonID)
	fmt.Fprintf(&sb, "  Original:   %s\n", report.Original)
	fmt.Fprintf(&sb, "  Candidate:  %s\n", report.Candidate)
	fmt.Fprintf(&sb, "  Size:       %dx%d\n", report.Width, report.Height)
	fmt.Fprintf(&sb, "  Similarity: %.2f%%\n", report.Score)
	fmt.Fprintf(&sb, "  Threshold:  %.0f\n", report.Threshold)
	fmt.Fprintf(&sb, "  Result:     %s\n", report.Verdict())

	if report.Tampered() {
		sb.WriteString("\nRegions:\n")
		for i, r := range report.Regions {
			fmt.Fprintf(&sb, "  %2d. x=%d y=%d w=%d h=%d\n", i+1, r.X, r.Y, r.Width, r.Height)
		}
	}

	if !report.Exif.Empty() || len(report.Hints) > 0 {
		sb.WriteString("\nMetadata:\n")
		for _, kv := range exifRows(report) {
			fmt.Fprintf(&sb, "  %-18s %s\n", kv[0]+":", kv[1])
		}
		for _, h := range report.Hints {
			fmt.Fprintf(&sb, "  ! %s\n", h)
		}
	}

	if len(report.Outputs) > 0 {
		sb.WriteString("\nOutputs:\n")
		for _, o := range report.Outputs {
			fmt.Fprintf(&sb, "  %s\n", o.URL)
		}
	}

	return io.WriteString(w.output, sb.String())
}

// exifRows returns the non-empty EXIF fields as name/value pairs
func exifRows(report *Report) [][]string {
	e := report.Exif
	all := [][]string{
		{"Software", e.Software},
		{"Make", e.Make},
		{"Model", e.Model},
		{"DateTime", e.DateTime},
		{"DateTimeOriginal", e.DateTimeOriginal},
		{"ModifyDate", e.ModifyDate},
	}
	rows := all[:0]
	for _, kv := range all {
		if kv[1] != "" {
			rows = append(rows, kv)
		}
	}
	return rows
}
