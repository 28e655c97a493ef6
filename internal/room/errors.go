package room

import "errors"

var (
	// ErrRoomNotFound is returned when a room ID does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrFloorNotFound is returned when a floor ID does not exist.
	ErrFloorNotFound = errors.New("floor not found")
)
