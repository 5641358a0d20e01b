package hub

import "time"

// Status is a robot's activity as reported by the bridge.
type Status string

// Known statuses.
const (
	StatusCleaning  Status = "cleaning"
	StatusPaused    Status = "paused"
	StatusIdle      Status = "idle"
	StatusReturning Status = "returning"
	StatusDocked    Status = "docked"
	StatusError     Status = "error"
)

// VacuumState is the last state a robot reported.
type VacuumState struct {
	Status      Status    `json:"status"`
	Battery     int       `json:"battery"`
	FanSpeed    string    `json:"fan_speed,omitempty"`
	WaterLevel  string    `json:"water_level,omitempty"`
	CleanArea   float64   `json:"clean_area"` // m²
	CleanTime   int       `json:"clean_time"` // seconds
	Charging    bool      `json:"charging"`
	MopAttached bool      `json:"mop_attached"`
	ErrorCode   int       `json:"error_code"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Command is published to a robot's command topic.
type Command struct {
	Name      string         `json:"command"`
	Params    map[string]any `json:"params,omitempty"`
	RequestID string         `json:"request_id"`
}

// Listener receives state updates. It runs on the MQTT delivery goroutine
// and must not block.
type Listener func(device string, state VacuumState)
