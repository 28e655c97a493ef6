package user

import "errors"

var (
	// ErrUserNotFound is returned when a user ID does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenUnknown is returned when no user carries the presented
	// access token.
	ErrTokenUnknown = errors.New("unknown access token")
)
