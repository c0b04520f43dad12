package imageprocessor

import (
	"image"
	"math/rand"
	"testing"

	"gocv.io/x/gocv"
)

// solidMat builds a BGR image filled with one color
func solidMat(t *testing.T, rows, cols int, b, g, r float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), rows, cols, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

// cloneMat copies a Mat and registers it for cleanup
func cloneMat(t *testing.T, src gocv.Mat) gocv.Mat {
	t.Helper()
	m := src.Clone()
	t.Cleanup(func() { m.Close() })
	return m
}

// fillRect paints rect (Max exclusive) with a solid BGR color
func fillRect(m gocv.Mat, rect image.Rectangle, b, g, r float64) {
	roi := m.Region(rect)
	defer roi.Close()
	roi.SetTo(gocv.NewScalar(b, g, r, 0))
}

// fillNoise paints rect with black/white noise drawn from a fixed seed, so
// nested rectangles share the same pixels where they overlap
func fillNoise(m gocv.Mat, rect image.Rectangle) {
	rng := rand.New(rand.NewSource(42))
	noise := make([]uint8, m.Rows()*m.Cols())
	for i := range noise {
		if rng.Intn(2) == 1 {
			noise[i] = 255
		}
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			v := noise[y*m.Cols()+x]
			for c := 0; c < 3; c++ {
				m.SetUCharAt3(y, x, c, v)
			}
		}
	}
}

// compareOrFail runs Compare and registers the result for cleanup
func compareOrFail(t *testing.T, original, candidate gocv.Mat, opts Options) *ComparisonResult {
	t.Helper()
	res, err := CompareWithOptions(original, candidate, opts)
	if err != nil {
		t.Fatalf("CompareWithOptions() error = %v", err)
	}
	t.Cleanup(res.Close)
	return res
}
