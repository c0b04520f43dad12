package imageprocessor

import (
	"image"

	"github.com/samber/lo"
	"gocv.io/x/gocv"
)

// Options tunes a comparison. The zero value reproduces the default behavior.
type Options struct {
	// MinRegionArea drops regions whose bounding box is smaller than this many
	// pixels. Zero keeps every region, including single-pixel noise.
	MinRegionArea int
}

// ComparisonResult is everything produced by one comparison. The Mats are
// owned by the caller and released by Close.
type ComparisonResult struct {
	Score     float64  // percentage similarity, two decimals
	MeanSSIM  float64  // unrounded mean structural similarity in [-1, 1]
	Threshold float32  // Otsu threshold applied to DiffMap
	Regions   []Region // sorted top-to-bottom, left-to-right

	DiffMap            gocv.Mat // 8-bit, 0 = identical structure
	Mask               gocv.Mat // 8-bit, 255 = significant difference
	AnnotatedOriginal  gocv.Mat // BGR
	AnnotatedCandidate gocv.Mat // BGR
}

// Close releases the native memory held by the result images.
func (r *ComparisonResult) Close() {
	if r == nil {
		return
	}
	r.DiffMap.Close()
	r.Mask.Close()
	r.AnnotatedOriginal.Close()
	r.AnnotatedCandidate.Close()
}

// Size returns the width and height shared by all result images.
func (r *ComparisonResult) Size() image.Point {
	return image.Pt(r.DiffMap.Cols(), r.DiffMap.Rows())
}

// Compare runs the full tamper-detection pipeline on two equally sized images.
// Neither input is modified.
func Compare(original, candidate gocv.Mat) (*ComparisonResult, error) {
	return CompareWithOptions(original, candidate, Options{})
}

// CompareWithOptions is Compare with tunable post-processing.
func CompareWithOptions(original, candidate gocv.Mat, opts Options) (*ComparisonResult, error) {
	if err := checkInputs(original, candidate); err != nil {
		return nil, err
	}

	origGray, err := ToGray(original)
	if err != nil {
		return nil, err
	}
	defer origGray.Close()
	candGray, err := ToGray(candidate)
	if err != nil {
		return nil, err
	}
	defer candGray.Close()

	ssim, err := computeSSIM(origGray, candGray)
	if err != nil {
		return nil, err
	}

	diff, err := differenceMap(ssim)
	if err != nil {
		return nil, err
	}

	mask, threshold := ThresholdDifference(diff)

	regions := FindRegions(mask)
	if opts.MinRegionArea > 0 {
		regions = lo.Filter(regions, func(r Region, _ int) bool {
			return r.Area() >= opts.MinRegionArea
		})
	}

	result := &ComparisonResult{
		Score:     scoreFromMean(ssim.mean),
		MeanSSIM:  ssim.mean,
		Threshold: threshold,
		Regions:   regions,
		DiffMap:   diff,
		Mask:      mask,
	}
	if result.AnnotatedOriginal, err = annotate(original, regions); err != nil {
		result.Close()
		return nil, err
	}
	if result.AnnotatedCandidate, err = annotate(candidate, regions); err != nil {
		result.Close()
		return nil, err
	}
	return result, nil
}

// CompareBytes decodes both buffers and compares them.
func CompareBytes(originalData, candidateData []byte, opts Options) (*ComparisonResult, error) {
	original, err := DecodeImage(originalData, "original")
	if err != nil {
		return nil, err
	}
	defer original.Close()

	candidate, err := DecodeImage(candidateData, "candidate")
	if err != nil {
		return nil, err
	}
	defer candidate.Close()

	return CompareWithOptions(original, candidate, opts)
}

// checkInputs validates the comparison preconditions
func checkInputs(original, candidate gocv.Mat) error {
	if original.Empty() || candidate.Empty() {
		return ErrEmptyImage
	}

	for _, m := range []gocv.Mat{original, candidate} {
		if !supportedType(m.Type()) {
			return &UnsupportedMatError{Type: m.Type()}
		}
	}

	origSize := image.Pt(original.Cols(), original.Rows())
	candSize := image.Pt(candidate.Cols(), candidate.Rows())
	if origSize != candSize {
		return &DimensionMismatchError{Original: origSize, Candidate: candSize}
	}

	if origSize.X < ssimWindow || origSize.Y < ssimWindow {
		return ErrImageTooSmall
	}
	return nil
}

func supportedType(t gocv.MatType) bool {
	switch t {
	case gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4:
		return true
	}
	return false
}
