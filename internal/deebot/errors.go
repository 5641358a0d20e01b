package deebot

import "errors"

var (
	// ErrUnsupportedVersion is returned when an entry's schema version is
	// newer than Version. The entry needs manual intervention.
	ErrUnsupportedVersion = errors.New("deebot: unsupported config entry version")

	// ErrInvalidData is returned when entry data cannot be decoded into the
	// schema its version claims.
	ErrInvalidData = errors.New("deebot: invalid config entry data")

	// ErrAlreadySetup is returned when setting up an entry that already has a hub.
	ErrAlreadySetup = errors.New("deebot: entry already set up")

	// ErrMissingPlatform is returned by Setup when a required platform was
	// not supplied.
	ErrMissingPlatform = errors.New("deebot: platform not provided")
)
