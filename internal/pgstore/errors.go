package pgstore

import "errors"

var (
	// ErrNotFound is returned when a user or group does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned on failed credential checks.
	// It deliberately does not distinguish a wrong password from an
	// unknown username.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUsernameTaken is returned when registering a duplicate username.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrEmailTaken is returned when registering a duplicate email.
	ErrEmailTaken = errors.New("email already exists")
)
