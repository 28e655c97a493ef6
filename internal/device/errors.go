package device

import "errors"

// Sentinel errors for device operations, matched with errors.Is.
var (
	// ErrDeviceNotFound indicates no device exists with the given id or ieee.
	ErrDeviceNotFound = errors.New("device: device not found")

	// ErrChannelNotFound indicates no channel exists with the given id
	// or (ieee, endpoint) pair.
	ErrChannelNotFound = errors.New("device: channel not found")

	// ErrUnknownModel indicates the model identifier reported by a
	// joining device has no classification entry. The half-built device
	// is rolled back before this is returned.
	ErrUnknownModel = errors.New("device: unknown model identifier")

	// ErrInvalidReport indicates an attribute report that cannot be
	// interpreted (unparseable value for its cluster).
	ErrInvalidReport = errors.New("device: invalid attribute report")
)
