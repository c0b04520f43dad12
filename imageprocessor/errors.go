package imageprocessor

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

var (
	// ErrEmptyImage is returned when a Mat handed to Compare holds no pixels.
	ErrEmptyImage = errors.New("image is empty")

	// ErrImageTooSmall is returned when an image cannot fit a single SSIM window.
	ErrImageTooSmall = fmt.Errorf("image must be at least %dx%d pixels", ssimWindow, ssimWindow)
)

// DecodeError reports a buffer that could not be parsed as an image.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to decode image: %s", e.Source)
	}
	return fmt.Sprintf("failed to decode image %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError is returned when the original and the candidate differ in size.
type DimensionMismatchError struct {
	Original  image.Point
	Candidate image.Point
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("image dimensions differ: original is %dx%d, candidate is %dx%d",
		e.Original.X, e.Original.Y, e.Candidate.X, e.Candidate.Y)
}

// UnsupportedMatError is returned for a Mat that is not 8-bit grayscale, BGR or BGRA.
type UnsupportedMatError struct {
	Type gocv.MatType
}

func (e *UnsupportedMatError) Error() string {
	return fmt.Sprintf("unsupported image type %s: want 8-bit with 1, 3 or 4 channels", e.Type)
}

// newDecodeError builds a DecodeError for the given source label
func newDecodeError(source string, err error) error {
	return &DecodeError{Source: source, Err: err}
}
