// Package api implements the HTTP REST API and WebSocket event stream for
// the Deebot integration core.
//
// This package provides:
//   - REST endpoints to list, add, reload, unload and remove config entries
//   - Entity views over the sensor, binary_sensor, vacuum and camera platforms
//   - Vacuum commands and camera map downloads
//   - WebSocket hub broadcasting vacuum.state and entry.state events
//   - Prometheus metrics at /metrics
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Graceful Degradation
//
// Vacuum commands and map downloads are optional dependencies. Without them
// the corresponding routes answer 503 and everything else keeps working.
package api
