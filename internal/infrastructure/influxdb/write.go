package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementVacuum is the measurement every sensor reading is stored under.
const measurementVacuum = "vacuum_sensor"

// WriteSensorReading records one numeric sensor value for a robot.
//
// Parameters:
//   - entryID: Config entry the robot belongs to
//   - device: Robot identifier
//   - sensor: Sensor key, e.g. "battery" or "clean_area"
//   - value: Reading
//   - ts: Time the bridge reported the value
//
// Example:
//
//	client.WriteSensorReading(entry.ID, "E0001", "battery", 87, state.UpdatedAt)
func (c *Client) WriteSensorReading(entryID, device, sensor string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sensorPoint(entryID, device, sensor, value, ts))
}

func sensorPoint(entryID, device, sensor string, value float64, ts time.Time) *write.Point {
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(measurementVacuum,
		map[string]string{
			"entry_id": entryID,
			"device":   device,
			"sensor":   sensor,
		},
		map[string]interface{}{
			"value": value,
		},
		ts)
}
