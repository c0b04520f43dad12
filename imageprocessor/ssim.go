package imageprocessor

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	dataRange  = 255.0
	ssimC1     = (ssimK1 * dataRange) * (ssimK1 * dataRange)
	ssimC2     = (ssimK2 * dataRange) * (ssimK2 * dataRange)
)

// ssimResult holds the per-pixel SSIM values (row-major) and their interior mean
type ssimResult struct {
	values []float64
	rows   int
	cols   int
	mean   float64
}

// ToGray converts a BGR, BGRA or single-channel Mat to 8-bit grayscale.
// The caller owns the returned Mat.
func ToGray(img gocv.Mat) (gocv.Mat, error) {
	if !supportedType(img.Type()) {
		return gocv.NewMat(), &UnsupportedMatError{Type: img.Type()}
	}

	gray := gocv.NewMat()
	var err error
	switch img.Channels() {
	case 1:
		err = img.CopyTo(&gray)
	case 4:
		err = gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		err = gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}
	if err != nil {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("failed to convert to grayscale: %w", err)
	}
	return gray, nil
}

// computeSSIM computes the windowed structural similarity of two grayscale Mats
// of equal size using a uniform 7x7 window and sample statistics.
func computeSSIM(gray1, gray2 gocv.Mat) (*ssimResult, error) {
	rows, cols := gray1.Rows(), gray1.Cols()

	f1 := gocv.NewMat()
	defer f1.Close()
	f2 := gocv.NewMat()
	defer f2.Close()
	if err := gray1.ConvertTo(&f1, gocv.MatTypeCV64F); err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	if err := gray2.ConvertTo(&f2, gocv.MatTypeCV64F); err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}

	f11 := gocv.NewMat()
	defer f11.Close()
	f22 := gocv.NewMat()
	defer f22.Close()
	f12 := gocv.NewMat()
	defer f12.Close()
	for _, p := range []struct {
		a, b gocv.Mat
		dst  *gocv.Mat
	}{{f1, f1, &f11}, {f2, f2, &f22}, {f1, f2, &f12}} {
		if err := gocv.Multiply(p.a, p.b, p.dst); err != nil {
			return nil, fmt.Errorf("failed to compute SSIM products: %w", err)
		}
	}

	ksize := image.Pt(ssimWindow, ssimWindow)
	blurred := make([]gocv.Mat, 5)
	for i, src := range []gocv.Mat{f1, f2, f11, f22, f12} {
		blurred[i] = gocv.NewMat()
		defer blurred[i].Close()
		if err := gocv.Blur(src, &blurred[i], ksize); err != nil {
			return nil, fmt.Errorf("failed to compute SSIM window means: %w", err)
		}
	}

	planes := make([][]float64, len(blurred))
	for i := range blurred {
		data, err := blurred[i].DataPtrFloat64()
		if err != nil {
			return nil, fmt.Errorf("failed to read SSIM statistics: %w", err)
		}
		planes[i] = data
	}
	ux, uy, uxx, uyy, uxy := planes[0], planes[1], planes[2], planes[3], planes[4]

	// Sample covariance over the window.
	np := float64(ssimWindow * ssimWindow)
	covNorm := np / (np - 1)

	values := make([]float64, rows*cols)
	for i := range values {
		vx := covNorm * (uxx[i] - ux[i]*ux[i])
		vy := covNorm * (uyy[i] - uy[i]*uy[i])
		vxy := covNorm * (uxy[i] - ux[i]*uy[i])

		a1 := 2*ux[i]*uy[i] + ssimC1
		a2 := 2*vxy + ssimC2
		b1 := ux[i]*ux[i] + uy[i]*uy[i] + ssimC1
		b2 := vx + vy + ssimC2

		values[i] = (a1 * a2) / (b1 * b2)
	}

	return &ssimResult{
		values: values,
		rows:   rows,
		cols:   cols,
		mean:   interiorMean(values, rows, cols, ssimWindow/2),
	}, nil
}

// interiorMean averages the values whose window lies fully inside the image
func interiorMean(values []float64, rows, cols, pad int) float64 {
	var sum float64
	var count int
	for y := pad; y < rows-pad; y++ {
		row := values[y*cols : (y+1)*cols]
		for x := pad; x < cols-pad; x++ {
			sum += row[x]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// scoreFromMean maps a mean SSIM to a percentage rounded to two decimals
func scoreFromMean(mean float64) float64 {
	return math.Round(mean*100*100) / 100
}

// differenceMap converts SSIM values to an 8-bit dissimilarity map:
// 0 for identical structure, 255 for SSIM at or below zero.
func differenceMap(s *ssimResult) (gocv.Mat, error) {
	diff := gocv.NewMatWithSize(s.rows, s.cols, gocv.MatTypeCV8U)
	data, err := diff.DataPtrUint8()
	if err != nil {
		diff.Close()
		return gocv.NewMat(), fmt.Errorf("failed to write difference map: %w", err)
	}

	for i, v := range s.values {
		d := 1 - v
		if d < 0 {
			d = 0
		} else if d > 1 {
			d = 1
		}
		data[i] = uint8(d * 255)
	}

	return diff, nil
}
