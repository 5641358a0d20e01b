// Package metrics provides Prometheus collectors for the Deebot entry lifecycle.
//
// Labels are limited to low-cardinality values (versions, results, platform
// names); entry ids and device ids are never used as labels.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// EntryMigrationsTotal counts config entry schema migrations.
	EntryMigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deebot_entry_migrations_total",
		Help: "Total number of config entry migrations, by source version, target version and result.",
	}, []string{"from", "to", "result"})

	// EntrySetupsTotal counts entry setup attempts.
	EntrySetupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deebot_entry_setups_total",
		Help: "Total number of config entry setup attempts, by result.",
	}, []string{"result"})

	// PlatformUnloadsTotal counts per-platform unload results.
	PlatformUnloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deebot_platform_unloads_total",
		Help: "Total number of platform unloads, by platform and result.",
	}, []string{"platform", "result"})

	// VacuumCommandsTotal counts commands sent to robots.
	VacuumCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deebot_vacuum_commands_total",
		Help: "Total number of vacuum commands, by command and result.",
	}, []string{"command", "result"})

	// LoadedEntries tracks entries currently in the loaded state.
	LoadedEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deebot_loaded_entries",
		Help: "Current number of loaded config entries.",
	})
)

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// RecordMigration increments the migration counter.
func RecordMigration(from, to int, ok bool) {
	EntryMigrationsTotal.WithLabelValues(strconv.Itoa(from), strconv.Itoa(to), result(ok)).Inc()
}

// RecordSetup increments the setup counter.
func RecordSetup(ok bool) {
	EntrySetupsTotal.WithLabelValues(result(ok)).Inc()
}

// RecordPlatformUnload increments the unload counter for one platform.
func RecordPlatformUnload(platform string, ok bool) {
	PlatformUnloadsTotal.WithLabelValues(platform, result(ok)).Inc()
}

// RecordCommand increments the vacuum command counter.
func RecordCommand(command string, ok bool) {
	VacuumCommandsTotal.WithLabelValues(command, result(ok)).Inc()
}

// SetLoadedEntries sets the loaded entries gauge.
func SetLoadedEntries(n int) {
	LoadedEntries.Set(float64(n))
}
