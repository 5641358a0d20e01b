package deebot

import "github.com/nerrad567/gray-logic-deebot/internal/platform"

// Domain is the integration's entry domain.
const Domain = "deebot"

// Version is the current config entry schema version.
const Version = 2

// Platform names forwarded to on setup and unload.
const (
	PlatformSensor       = platform.NameSensor
	PlatformBinarySensor = platform.NameBinarySensor
	PlatformVacuum       = platform.NameVacuum
	PlatformCamera       = platform.NameCamera
)

// Platforms is the fixed set of platforms every entry is forwarded to.
var Platforms = []string{PlatformSensor, PlatformBinarySensor, PlatformVacuum, PlatformCamera}

const startupBanner = `
-------------------------------------------------------------------
Deebot
This is a custom integration.
If you have any issues with it, open an issue on the project tracker.
-------------------------------------------------------------------`
