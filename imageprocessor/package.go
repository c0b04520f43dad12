// Package imageprocessor compares a reference image with a candidate and
// locates the areas where the candidate was altered.
//
// The pipeline converts both images to grayscale, computes a 7x7 windowed
// SSIM map, turns it into an 8-bit difference map, binarizes that map with an
// Otsu threshold and reports one bounding box per connected area of change.
// The boxes are drawn in red on copies of both inputs.
//
// Compare has no shared state and performs no I/O, so independent pairs may
// be compared from several goroutines.
package imageprocessor
