// Package influxdb stores vacuum sensor history in InfluxDB v2.
//
// History is optional. When influxdb.enabled is false Connect returns
// ErrDisabled and the sensor platform runs without a writer.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	switch {
//	case errors.Is(err, influxdb.ErrDisabled):
//	    // no history
//	case err != nil:
//	    return err
//	}
//	defer client.Close()
//
// Each reading is one point in the "vacuum_sensor" measurement, tagged
// with entry_id, device and sensor.
package influxdb
