package entries

import "errors"

// Domain errors for the entries package.
var (
	// ErrEntryNotFound is returned when an entry ID does not exist.
	ErrEntryNotFound = errors.New("entries: not found")

	// ErrEntryExists is returned when creating an entry whose ID is taken.
	ErrEntryExists = errors.New("entries: already exists")

	// ErrIntegrationNotFound is returned when no integration is registered
	// for an entry's domain.
	ErrIntegrationNotFound = errors.New("entries: integration not registered")

	// ErrIntegrationExists is returned when registering a domain twice.
	ErrIntegrationExists = errors.New("entries: integration already registered")

	// ErrUnsupportedVersion is returned when a stored entry is newer than
	// the integration that should load it.
	ErrUnsupportedVersion = errors.New("entries: unsupported entry version")

	// ErrMigrationFailed is returned when an integration reports that it
	// could not migrate an entry.
	ErrMigrationFailed = errors.New("entries: migration failed")

	// ErrUnloadFailed is returned by Reload and Remove when the entry could
	// not be unloaded. The entry stays registered.
	ErrUnloadFailed = errors.New("entries: unload failed")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("entries: invalid")
)
