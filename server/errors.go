package server

import (
	"context"
	"errors"
	"net/http"

	"tamperdetect/detector"
	"tamperdetect/imageprocessor"
	"tamperdetect/logging"
	"tamperdetect/reference"
)

var (
	errNoFile    = errors.New("no file uploaded")
	errTooLarge  = errors.New("uploaded file is too large")
	errBadUpload = errors.New("malformed upload")
)

// noOriginalMessage is shown when no reference image is configured.
const noOriginalMessage = "No original image configured"

// classify maps an error to an HTTP status and a user-facing message.
func classify(err error) (int, string) {
	var (
		refErr   *detector.ReferenceError
		decode   *imageprocessor.DecodeError
		mismatch *imageprocessor.DimensionMismatchError
		matType  *imageprocessor.UnsupportedMatError
	)

	switch {
	case errors.Is(err, errNoFile), errors.Is(err, detector.ErrEmptyUpload):
		return http.StatusBadRequest, "No file uploaded"
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge, "Uploaded file is too large"
	case errors.Is(err, errBadUpload):
		return http.StatusBadRequest, "Malformed upload"
	case errors.Is(err, reference.ErrEmptyReferenceSet):
		return http.StatusConflict, noOriginalMessage
	case errors.Is(err, detector.ErrReadOnlyReference):
		return http.StatusMethodNotAllowed, "The original image cannot be replaced"
	case errors.As(err, &refErr):
		logging.LogError("Reference image unusable: %v", err)
		return http.StatusInternalServerError, "The original image could not be read"
	case errors.As(err, &decode), errors.Is(err, reference.ErrUnsupportedName):
		return http.StatusBadRequest, "The uploaded file is not a supported image"
	case errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity, mismatch.Error()
	case errors.Is(err, imageprocessor.ErrImageTooSmall), errors.As(err, &matType):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The comparison timed out"
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never seen.
		return 499, "Request cancelled"
	default:
		logging.LogError("Comparison failed: %v", err)
		return http.StatusInternalServerError, "Internal error"
	}
}
