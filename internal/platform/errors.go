package platform

import "errors"

var (
	// ErrAlreadyLoaded is returned when an entry is set up twice on a platform.
	ErrAlreadyLoaded = errors.New("platform: entry already loaded")

	// ErrNotLoaded is returned for an entry the platform does not hold.
	ErrNotLoaded = errors.New("platform: entry not loaded")

	// ErrUnknownDevice is returned for a robot the entry's hub does not know.
	ErrUnknownDevice = errors.New("platform: unknown device")

	// ErrInvalidCommand is returned for an unsupported vacuum command.
	ErrInvalidCommand = errors.New("platform: invalid command")

	// ErrInvalidFanSpeed is returned for an unsupported fan speed.
	ErrInvalidFanSpeed = errors.New("platform: invalid fan speed")

	// ErrMissingParam is returned when a command lacks a required parameter.
	ErrMissingParam = errors.New("platform: missing command parameter")

	// ErrNoImage is returned when no map has been received yet.
	ErrNoImage = errors.New("platform: no map image")
)
