package mqtt

import "errors"

// Sentinel errors for MQTT operations. Wrapped errors carry broker
// detail; callers match with errors.Is.
var (
	// ErrNotConnected is returned when an operation requires an active
	// broker connection and none exists.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed is returned when the initial connection to the
	// broker cannot be established.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish does not complete.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe does not complete.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe does not
	// complete.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic is returned for empty or malformed topics.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrTLSConfig is returned when TLS material cannot be loaded.
	ErrTLSConfig = errors.New("mqtt: tls configuration failed")
)
