package ocr

import "errors"

var (
	// ErrMalformedResponse is returned when the OCR payload lacks the
	// expected top-level result object.
	ErrMalformedResponse = errors.New("malformed OCR response")

	// ErrEmptyImage is returned when recognition is requested with no image
	// bytes.
	ErrEmptyImage = errors.New("image data is empty")

	// ErrMissingCredentials is returned when the provider credentials are
	// not configured.
	ErrMissingCredentials = errors.New("OCR credentials not configured")
)
