package platform

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-deebot/internal/hub"
)

// SensorWriter receives numeric sensor readings. *influxdb.Client
// implements it.
type SensorWriter interface {
	WriteSensorReading(entryID, device, sensor string, value float64, ts time.Time)
}

type sensorDesc struct {
	key   string
	name  string
	unit  string
	value func(hub.VacuumState) any

	// numeric is set for sensors written to the history store.
	numeric func(hub.VacuumState) float64
}

var sensorDescs = []sensorDesc{
	{
		key: "battery", name: "Battery", unit: "%",
		value:   func(s hub.VacuumState) any { return s.Battery },
		numeric: func(s hub.VacuumState) float64 { return float64(s.Battery) },
	},
	{
		key: "fan_speed", name: "Fan speed",
		value: func(s hub.VacuumState) any { return s.FanSpeed },
	},
	{
		key: "water_level", name: "Water level",
		value: func(s hub.VacuumState) any { return s.WaterLevel },
	},
	{
		key: "clean_area", name: "Cleaning area", unit: "m²",
		value:   func(s hub.VacuumState) any { return s.CleanArea },
		numeric: func(s hub.VacuumState) float64 { return s.CleanArea },
	},
	{
		key: "clean_time", name: "Cleaning duration", unit: "s",
		value:   func(s hub.VacuumState) any { return s.CleanTime },
		numeric: func(s hub.VacuumState) float64 { return float64(s.CleanTime) },
	},
	{
		key: "error_code", name: "Error",
		value:   func(s hub.VacuumState) any { return s.ErrorCode },
		numeric: func(s hub.VacuumState) float64 { return float64(s.ErrorCode) },
	},
}

// Sensor exposes the robots' measurements.
type Sensor struct {
	attachments
	writer SensorWriter
}

// NewSensor creates the sensor platform. writer may be nil.
func NewSensor(writer SensorWriter) *Sensor {
	return &Sensor{attachments: newAttachments(), writer: writer}
}

// Name returns "sensor".
func (s *Sensor) Name() string { return NameSensor }

// SetupEntry attaches h. With a writer configured, every state update is
// recorded.
func (s *Sensor) SetupEntry(ctx context.Context, entryID string, h Hub) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var unsubscribe func()
	if s.writer != nil {
		unsubscribe = h.Subscribe(func(device string, st hub.VacuumState) {
			s.record(entryID, device, st)
		})
	}
	if err := s.attach(entryID, h, unsubscribe); err != nil {
		if unsubscribe != nil {
			unsubscribe()
		}
		return err
	}
	return nil
}

func (s *Sensor) record(entryID, device string, st hub.VacuumState) {
	for _, d := range sensorDescs {
		if d.numeric == nil {
			continue
		}
		s.writer.WriteSensorReading(entryID, device, d.key, d.numeric(st), st.UpdatedAt)
	}
}

// UnloadEntry detaches the entry and stops recording its updates.
func (s *Sensor) UnloadEntry(_ context.Context, entryID string) (bool, error) {
	return s.detach(entryID)
}

// Entities returns one entity per sensor per robot.
func (s *Sensor) Entities(entryID string) []Entity {
	h, ok := s.hub(entryID)
	if !ok {
		return nil
	}
	var out []Entity
	for _, device := range h.Devices() {
		st, found := h.State(device)
		for _, d := range sensorDescs {
			e := Entity{
				ID:        entityID(NameSensor, device, d.key),
				Platform:  NameSensor,
				Device:    device,
				Name:      d.name,
				Unit:      d.unit,
				Available: found,
			}
			if found {
				e.State = d.value(st)
			}
			out = append(out, e)
		}
	}
	return out
}
