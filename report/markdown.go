package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/samber/lo"

	"tamperdetect/types"
)

// MarkdownWriter outputs reports as GitHub flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Tamper Detection Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Comparison", "`" + report.ComparisonID + "`"},
			{"Original", report.Original},
			{"Candidate", report.Candidate},
			{"Size", fmt.Sprintf("%dx%d", report.Width, report.Height)},
			{"Similarity", fmt.Sprintf("%.2f%%", report.Score)},
			{"Threshold", strconv.FormatFloat(report.Threshold, 'f', 0, 64)},
			{"Date", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		},
	})
	md.PlainText("")

	if report.Tampered() {
		md.Warningf("%s.", capitalize(report.Verdict()))
	} else {
		md.Note("No differences detected.")
	}
	md.PlainText("")

	if report.Tampered() {
		md.H2("Regions")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"#", "X", "Y", "Width", "Height", "Area"},
			Rows: lo.Map(report.Regions, func(r types.Region, i int) []string {
				return []string{
					strconv.Itoa(i + 1),
					strconv.Itoa(r.X),
					strconv.Itoa(r.Y),
					strconv.Itoa(r.Width),
					strconv.Itoa(r.Height),
					strconv.Itoa(r.Width * r.Height),
				}
			}),
		})
		md.PlainText("")
	}

	if rows := exifRows(report); len(rows) > 0 || len(report.Hints) > 0 {
		md.H2("Metadata")
		md.PlainText("")
		if len(rows) > 0 {
			md.Table(markdown.TableSet{Header: []string{"Tag", "Value"}, Rows: rows})
			md.PlainText("")
		}
		if len(report.Hints) > 0 {
			md.BulletList(report.Hints...)
			md.PlainText("")
		}
	}

	if len(report.Outputs) > 0 {
		md.H2("Outputs")
		md.PlainText("")
		md.BulletList(lo.Map(report.Outputs, func(o Output, _ int) string {
			return "[" + o.Name + "](" + o.URL + ")"
		})...)
	}

	return len(md.String()), md.Build()
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
