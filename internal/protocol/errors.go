package protocol

import "errors"

// Frame decoding errors.
var (
	// ErrEmptyFrame is returned when a frame line is empty.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrMalformedFrame is returned when a frame cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing field")

	// ErrBadField is returned when a field value has the wrong form.
	ErrBadField = errors.New("bad field value")
)
