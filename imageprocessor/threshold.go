package imageprocessor

import (
	"gocv.io/x/gocv"
)

// maskForeground is the mask value for pixels that differ significantly.
const maskForeground = 255

// ThresholdDifference binarizes an 8-bit difference map with Otsu's method.
// Pixels strictly above the returned threshold become foreground (255); pixels
// at or below it are background (0).
//
// A uniform map has a single-peak histogram and no meaningful Otsu split, so
// the threshold is pinned to 0: an all-zero map gives an empty mask and a
// uniform non-zero map marks every pixel as different.
func ThresholdDifference(diff gocv.Mat) (gocv.Mat, float32) {
	mask := gocv.NewMat()

	minVal, maxVal, _, _ := gocv.MinMaxLoc(diff)
	if minVal == maxVal {
		gocv.Threshold(diff, &mask, 0, maskForeground, gocv.ThresholdBinary)
		return mask, 0
	}

	threshold := gocv.Threshold(diff, &mask, 0, maskForeground, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	return mask, threshold
}
