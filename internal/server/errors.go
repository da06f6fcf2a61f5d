package server

import "errors"

var (
	// ErrServerClosed is returned when serving on a closed server.
	ErrServerClosed = errors.New("server closed")
)
