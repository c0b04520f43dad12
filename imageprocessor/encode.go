package imageprocessor

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Output file names used when persisting a comparison.
const (
	DiffImageName              = "diff.png"
	ThresholdImageName         = "threshold.png"
	OriginalAnnotatedImageName = "original_with_diff.png"
	TamperedAnnotatedImageName = "tampered_with_diff.png"
)

// EncodedOutput is one result image encoded for storage.
type EncodedOutput struct {
	Name string
	Data []byte
}

// EncodePNG encodes a Mat as PNG.
func EncodePNG(img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory, so copy before the buffer is freed.
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

// EncodeOutputs encodes the four result images in a fixed order:
// difference map, threshold mask, annotated original, annotated candidate.
func (r *ComparisonResult) EncodeOutputs() ([]EncodedOutput, error) {
	images := []struct {
		name string
		mat  gocv.Mat
	}{
		{DiffImageName, r.DiffMap},
		{ThresholdImageName, r.Mask},
		{OriginalAnnotatedImageName, r.AnnotatedOriginal},
		{TamperedAnnotatedImageName, r.AnnotatedCandidate},
	}

	outputs := make([]EncodedOutput, 0, len(images))
	for _, img := range images {
		data, err := EncodePNG(img.mat)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", img.name, err)
		}
		outputs = append(outputs, EncodedOutput{Name: img.name, Data: data})
	}
	return outputs, nil
}
