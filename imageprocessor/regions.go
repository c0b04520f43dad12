package imageprocessor

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"gocv.io/x/gocv"
)

// highlightThickness is the outline width drawn around each region.
const highlightThickness = 2

// highlightColor is pure red; gocv stores it as BGR (0, 0, 255).
var highlightColor = color.RGBA{R: 255, A: 255}

// Region is the bounding box of one connected area of difference.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the region as an image.Rectangle (Max exclusive).
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Area returns the bounding box area in pixels.
func (r Region) Area() int {
	return r.Width * r.Height
}

// Contains reports whether the pixel (x, y) lies inside the region.
func (r Region) Contains(x, y int) bool {
	return image.Pt(x, y).In(r.Rect())
}

// FindRegions returns one bounding box per externally connected foreground
// component of a binary mask. Holes do not produce extra regions.
func FindRegions(mask gocv.Mat) []Region {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	regions := make([]Region, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i))
		regions = append(regions, Region{
			X:      rect.Min.X,
			Y:      rect.Min.Y,
			Width:  rect.Dx(),
			Height: rect.Dy(),
		})
	}

	sortRegions(regions)
	return regions
}

// sortRegions orders regions top-to-bottom, then left-to-right
func sortRegions(regions []Region) {
	sort.Slice(regions, func(i, j int) bool {
		a, b := regions[i], regions[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Width != b.Width {
			return a.Width < b.Width
		}
		return a.Height < b.Height
	})
}

// annotate returns a BGR copy of img with every region outlined in red.
func annotate(img gocv.Mat, regions []Region) (gocv.Mat, error) {
	out := gocv.NewMat()
	var err error
	switch img.Channels() {
	case 1:
		err = gocv.CvtColor(img, &out, gocv.ColorGrayToBGR)
	case 4:
		err = gocv.CvtColor(img, &out, gocv.ColorBGRAToBGR)
	default:
		err = img.CopyTo(&out)
	}
	if err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("failed to prepare annotated image: %w", err)
	}

	for _, r := range regions {
		// Corners are (x, y) and (x+w, y+h), so the far edges sit just outside the box.
		if err := gocv.Rectangle(&out, r.Rect(), highlightColor, highlightThickness); err != nil {
			out.Close()
			return gocv.NewMat(), fmt.Errorf("failed to outline region: %w", err)
		}
	}
	return out, nil
}
