package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "deebot"

// Topics builds the topic names exchanged with the vacuum bridge.
//
// The bridge publishes one subtree per robot:
//
//	<prefix>/<device>/state     retained JSON state (bridge -> core)
//	<prefix>/<device>/map       latest map image, PNG bytes (bridge -> core)
//	<prefix>/<device>/command   JSON command (core -> bridge)
//
// and the core announces its own presence on <prefix>/clients/<client>/status.
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics rooted at prefix, falling back to
// DefaultTopicPrefix when prefix is empty.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// State returns the state topic for a robot.
//
// Example: deebot/E0001234567890/state
func (t Topics) State(device string) string {
	return fmt.Sprintf("%s/%s/state", t.root(), device)
}

// Map returns the map image topic for a robot.
func (t Topics) Map(device string) string {
	return fmt.Sprintf("%s/%s/map", t.root(), device)
}

// Command returns the command topic for a robot.
func (t Topics) Command(device string) string {
	return fmt.Sprintf("%s/%s/command", t.root(), device)
}

// ClientStatus returns the retained presence topic for a core client.
func (t Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/clients/%s/status", t.root(), clientID)
}

// AllStates matches the state topic of every robot.
func (t Topics) AllStates() string {
	return t.root() + "/+/state"
}

// DeviceFromTopic extracts the robot id from a state, map or command topic.
// ok is false if topic is not a per-device topic under this prefix.
func (t Topics) DeviceFromTopic(topic string) (device string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/")
	if !found {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[0] == "clients" {
		return "", false
	}
	switch parts[1] {
	case "state", "map", "command":
		return parts[0], true
	}
	return "", false
}
