// Package platform exposes an entry's robots as entities.
//
// Each config entry is forwarded to four platforms, all sharing the
// entry's hub:
//
//	sensor         battery, fan speed, water level, clean area, clean time, error code
//	binary_sensor  charging, mop attached
//	vacuum         one controllable entity per robot
//	camera         the robot's latest map image
//
// A platform holds no state of its own beyond the hubs attached to it;
// entity state is read from the hub on demand.
package platform
