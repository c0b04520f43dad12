package imageprocessor

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"gocv.io/x/gocv"
)

// DecodeImage decodes an in-memory image into a 3-channel BGR Mat.
// OpenCV is tried first; formats the local OpenCV build lacks fall back to
// the Go image decoders. The source label only appears in errors.
func DecodeImage(data []byte, source string) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), newDecodeError(source, errors.New("empty buffer"))
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	mat.Close()

	img, goErr := tryGoImagePackages(data)
	if goErr != nil {
		if err == nil {
			err = goErr
		}
		return gocv.NewMat(), newDecodeError(source, err)
	}

	return gocvMatFromGoImage(img, source)
}

// LoadImage reads and decodes an image file.
func LoadImage(path string) (gocv.Mat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.NewMat(), newDecodeError(path, err)
	}
	return DecodeImage(data, path)
}

// MatFromImage converts a Go image into a BGR Mat.
func MatFromImage(img image.Image) (gocv.Mat, error) {
	return gocvMatFromGoImage(img, "image.Image")
}

// Try to decode with Go's standard (and x/image) decoders
func tryGoImagePackages(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// Convert a Go image to an OpenCV BGR Mat
func gocvMatFromGoImage(img image.Image, source string) (gocv.Mat, error) {
	if img.Bounds().Empty() {
		return gocv.NewMat(), newDecodeError(source, errors.New("image has no pixels"))
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), newDecodeError(source, err)
	}
	return mat, nil
}
