// Package hub is the per-entry connection to an account's robots.
//
// The robots are reached through an MQTT bridge that publishes each
// robot's state and map under its own topic subtree (see mqtt.Topics).
// A Hub subscribes to the robots selected in the entry, caches their
// latest state and map image, fans state changes out to listeners and
// publishes commands.
//
// If the entry selects no robots, every robot the bridge reports is used.
package hub
