package hub

import "errors"

var (
	// ErrUnknownDevice is returned for a robot the hub does not track.
	ErrUnknownDevice = errors.New("hub: unknown device")

	// ErrClosed is returned by operations on a closed hub.
	ErrClosed = errors.New("hub: closed")

	// ErrInvalidState is returned when a state payload cannot be decoded.
	ErrInvalidState = errors.New("hub: invalid state payload")
)
