package kv

import "errors"

var (
	// ErrNotFound is returned when a key or hash field does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrWrongType is returned when an operation is applied to a key
	// holding a different kind of value.
	ErrWrongType = errors.New("wrong value type for key")

	// ErrIndexOutOfRange is returned by LSet for an invalid index.
	ErrIndexOutOfRange = errors.New("list index out of range")
)
