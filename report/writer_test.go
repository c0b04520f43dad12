package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"tamperdetect/types"
)

func createTestReport() *Report {
	return &Report{
		ComparisonID: "20260101T000000-abcdef",
		Original:     "original.png",
		Candidate:    "suspect.png",
		Score:        91.37,
		Threshold:    12,
		Width:        100,
		Height:       100,
		Regions: []types.Region{
			{X: 17, Y: 17, Width: 16, Height: 16},
			{X: 60, Y: 5, Width: 10, Height: 8},
		},
		Outputs: []Output{
			{Name: "diff.png", URL: "/uploads/20260101T000000-abcdef_diff.png"},
		},
		Exif:        types.ExifSummary{Software: "GIMP 2.10"},
		Hints:       []string{"written by editing software (gimp)"},
		GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewWriter(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr error
	}{
		{"", "*report.TextWriter", nil},
		{FormatText, "*report.TextWriter", nil},
		{FormatJSON, "*report.JSONWriter", nil},
		{FormatMarkdown, "*report.MarkdownWriter", nil},
		{"xml", "", ErrUnknownFormat},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w, err := NewWriter(tt.format, &bytes.Buffer{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewWriter() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil {
				if got := typeName(w); got != tt.want {
					t.Errorf("NewWriter() = %s, want %s", got, tt.want)
				}
			}
		})
	}
}

func typeName(w Writer) string {
	switch w.(type) {
	case *TextWriter:
		return "*report.TextWriter"
	case *JSONWriter:
		return "*report.JSONWriter"
	case *MarkdownWriter:
		return "*report.MarkdownWriter"
	}
	return "unknown"
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewTextWriter(&buf).Write(createTestReport()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Similarity: 91.37%",
		"2 altered regions detected",
		"x=17 y=17 w=16 h=16",
		"Software:",
		"GIMP 2.10",
		"! written by editing software",
		"/uploads/20260101T000000-abcdef_diff.png",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTextWriterCleanResult(t *testing.T) {
	r := &Report{ComparisonID: "x", Score: 100}
	var buf bytes.Buffer
	if _, err := NewTextWriter(&buf).Write(r); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "no differences detected") {
		t.Errorf("output = %s", out)
	}
	if strings.Contains(out, "Regions:") || strings.Contains(out, "Metadata:") {
		t.Errorf("empty sections rendered:\n%s", out)
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["score"] != 91.37 {
		t.Errorf("score = %v", decoded["score"])
	}
	regions, ok := decoded["regions"].([]interface{})
	if !ok || len(regions) != 2 {
		t.Errorf("regions = %v", decoded["regions"])
	}
	exif, ok := decoded["exif"].(map[string]interface{})
	if !ok || exif["software"] != "GIMP 2.10" {
		t.Errorf("exif = %v", decoded["exif"])
	}
}

func TestMarkdownWriter(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Tamper Detection Report",
		"## Regions",
		"91.37%",
		"2 altered regions detected",
		"## Metadata",
		"[diff.png](/uploads/20260101T000000-abcdef_diff.png)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReportHelpers(t *testing.T) {
	r := createTestReport()
	if got := r.OutputURL("diff.png"); got != "/uploads/20260101T000000-abcdef_diff.png" {
		t.Errorf("OutputURL() = %q", got)
	}
	if got := r.OutputURL("missing.png"); got != "" {
		t.Errorf("OutputURL(missing) = %q", got)
	}

	r.Regions = r.Regions[:1]
	if got := r.Verdict(); got != "1 altered region detected" {
		t.Errorf("Verdict() = %q", got)
	}
}
