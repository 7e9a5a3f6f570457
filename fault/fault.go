// Package fault defines the gateway error taxonomy and its HTTP mapping.
//
// Components wrap one of the sentinel errors with fmt.Errorf("...: %w", ...);
// handlers classify with errors.Is and never inspect error strings.
package fault

import (
	"errors"
	"net/http"
)

var (
	// ErrBadRequest covers validation failures: empty uploads, malformed
	// parameters, inputs already in the requested target format.
	ErrBadRequest = errors.New("bad request")

	// ErrUnsupportedMedia means the file category has no pipeline for the
	// requested endpoint under the active profile.
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// ErrConversion is an office converter failure (nonzero exit, timeout).
	ErrConversion = errors.New("conversion failed")

	// ErrImageConversion is a rasterizer failure (pdfinfo/pdftoppm).
	ErrImageConversion = errors.New("image conversion failed")

	// ErrParse is a structured-parser back-end failure.
	ErrParse = errors.New("parse error")

	// ErrVLM is a VLM back-end failure.
	ErrVLM = errors.New("vlm error")
)

// Kind returns the wire-level error kind string for err.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return "BAD_REQUEST"
	case errors.Is(err, ErrUnsupportedMedia):
		return "UNSUPPORTED_MEDIA_TYPE"
	case errors.Is(err, ErrConversion):
		return "CONVERSION_FAILED"
	case errors.Is(err, ErrImageConversion):
		return "IMAGE_CONVERSION_FAILED"
	case errors.Is(err, ErrParse):
		return "PARSE_ERROR"
	case errors.Is(err, ErrVLM):
		return "VLM_ERROR"
	default:
		return "INTERNAL"
	}
}

// Status returns the HTTP status code for err.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrConversion), errors.Is(err, ErrImageConversion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrParse), errors.Is(err, ErrVLM):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
