package server

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"testing"

	"gocv.io/x/gocv"

	"tamperdetect/imageprocessor"
	"tamperdetect/reference"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no file", errNoFile, http.StatusBadRequest},
		{"too large", errTooLarge, http.StatusRequestEntityTooLarge},
		{"no reference", reference.ErrEmptyReferenceSet, http.StatusConflict},
		{"undecodable", &imageprocessor.DecodeError{Source: "candidate"}, http.StatusBadRequest},
		{"bad reference name", fmt.Errorf("%w: x.txt", reference.ErrUnsupportedName), http.StatusBadRequest},
		{"size mismatch", &imageprocessor.DimensionMismatchError{Original: image.Pt(1, 1), Candidate: image.Pt(2, 2)}, http.StatusUnprocessableEntity},
		{"too small", imageprocessor.ErrImageTooSmall, http.StatusUnprocessableEntity},
		{"16-bit image", fmt.Errorf("compare: %w", &imageprocessor.UnsupportedMatError{Type: gocv.MatTypeCV16UC3}), http.StatusUnprocessableEntity},
		{"timeout", fmt.Errorf("compare: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := classify(tt.err)
			if got != tt.want {
				t.Errorf("classify(%v) = %d, want %d", tt.err, got, tt.want)
			}
			if msg == "" {
				t.Error("empty message")
			}
		})
	}
}
