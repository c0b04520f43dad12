package imageprocessor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Fingerprint identifies a reference image so comparisons can be traced
// back to the exact reference they ran against.
type Fingerprint struct {
	SHA256      string
	AverageHash string
	Width       int
	Height      int
}

// ComputeFingerprint hashes the encoded bytes and the decoded pixels of an image.
func ComputeFingerprint(data []byte, img gocv.Mat) (Fingerprint, error) {
	avgHash, err := ComputeAverageHash(img)
	if err != nil {
		return Fingerprint{}, err
	}

	sum := sha256.Sum256(data)
	return Fingerprint{
		SHA256:      hex.EncodeToString(sum[:]),
		AverageHash: avgHash,
		Width:       img.Cols(),
		Height:      img.Rows(),
	}, nil
}

// ComputeAverageHash calculates a 64-bit average hash for the image
// Always returns a hexadecimal string representation
func ComputeAverageHash(img gocv.Mat) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("cannot compute hash for empty image")
	}

	gray, err := ToGray(img)
	if err != nil {
		return "", err
	}
	defer gray.Close()

	// Resize to 8x8
	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(gray, &resized, image.Point{X: 8, Y: 8}, 0, 0, gocv.InterpolationArea); err != nil {
		return "", fmt.Errorf("failed to resize for hashing: %w", err)
	}

	var sum uint64
	for y := 0; y < resized.Rows(); y++ {
		for x := 0; x < resized.Cols(); x++ {
			sum += uint64(resized.GetUCharAt(y, x))
		}
	}
	threshold := float64(sum) / 64

	var hash uint64
	for y := 0; y < resized.Rows(); y++ {
		for x := 0; x < resized.Cols(); x++ {
			hash <<= 1
			if float64(resized.GetUCharAt(y, x)) >= threshold {
				hash |= 1
			}
		}
	}

	return fmt.Sprintf("%016x", hash), nil
}
