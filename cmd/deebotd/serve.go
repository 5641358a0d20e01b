package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-deebot/internal/api"
	"github.com/nerrad567/gray-logic-deebot/internal/deebot"
	"github.com/nerrad567/gray-logic-deebot/internal/entries"
	"github.com/nerrad567/gray-logic-deebot/internal/hub"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-deebot/internal/platform"
	"github.com/nerrad567/gray-logic-deebot/migrations"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the integration until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Validated configuration
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting deebotd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	var writer platform.SensorWriter
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to influxdb: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Warn("influxdb write failed", "error", err)
		})
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing influxdb", "error", closeErr)
			}
		}()
		writer = influxClient
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	mgr := entries.NewManager(entries.NewSQLiteRepository(db.DB))
	mgr.SetLogger(log.Component("entries"))
	mgr.SetSetupTimeout(cfg.Deebot.SetupTimeout)

	sensor := platform.NewSensor(writer)
	vacuum := platform.NewVacuum()
	camera := platform.NewCamera()
	platforms := []platform.Platform{sensor, platform.NewBinarySensor(), vacuum, camera}

	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.Component("api"),
		Entries:   mgr,
		Platforms: platforms,
		Vacuum:    vacuum,
		Camera:    camera,
		DB:        db.DB,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	mgr.OnStateChange(srv.PublishEntryState)

	registry := deebot.NewRegistry()
	integration := deebot.New(registry, newHubFactory(cfg, log, srv), platforms...)
	integration.SetLogger(log.Component("deebot"))
	if err := mgr.Register(ctx, integration); err != nil {
		return fmt.Errorf("registering integration: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing api server", "error", closeErr)
		}
	}()

	if err := mgr.LoadAll(ctx); err != nil {
		log.Warn("some entries failed to load", "error", err)
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		log.Warn("initial health check failed", "error", err)
	}

	log.Info("deebotd started",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"entries", len(mgr.List()),
		"hubs", registry.Len(),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, stopping...")

	// ctx is cancelled; unloading needs its own deadline.
	unloadCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	mgr.UnloadAll(unloadCtx)
	if registry.Len() > 0 {
		log.Warn("hubs still open after unload", "entries", registry.IDs())
	}

	log.Info("deebotd stopped")
	return nil
}

// openDatabase opens the entry store and applies pending schema migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// newHubFactory returns the factory the integration uses to build one hub
// per entry. Each hub gets its own MQTT connection so that the entry's
// verify_ssl flag applies to it alone, and forwards state updates to
// WebSocket subscribers.
func newHubFactory(cfg *config.Config, log *logging.Logger, srv *api.Server) deebot.HubFactory {
	topics := mqtt.NewTopics(cfg.Deebot.TopicPrefix)

	return func(_ context.Context, entryID string, data deebot.DataV2) (deebot.Hub, error) {
		mqttCfg := cfg.MQTT
		mqttCfg.Broker.ClientID = hubClientID(cfg.MQTT.Broker.ClientID, entryID)
		mqttCfg.Broker.InsecureSkipVerify = !data.VerifySSL

		client, err := mqtt.Connect(mqttCfg, topics)
		if err != nil {
			return nil, fmt.Errorf("connecting to mqtt: %w", err)
		}
		entryLog := log.Component("hub").With("entry_id", entryID)
		client.SetLogger(entryLog)

		h := hub.New(hub.Config{
			EntryID:   entryID,
			Username:  data.Username,
			Country:   data.Country,
			Continent: data.Continent,
			Devices:   data.Devices,
			VerifySSL: data.VerifySSL,
			Topics:    topics,
			QoS:       byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		}, client)
		h.SetLogger(entryLog)
		h.Subscribe(func(device string, st hub.VacuumState) {
			srv.PublishVacuumState(entryID, device, st)
		})
		return h, nil
	}
}

// hubClientID derives a per-entry MQTT client id; brokers drop an older
// session when a second client connects with the same id.
func hubClientID(base, entryID string) string {
	short := entryID
	if len(short) > 8 {
		short = short[:8]
	}
	return base + "-" + short
}

// healthCheck verifies the infrastructure the entries depend on.
//
// Parameters:
//   - ctx: Context for timeout
//   - db: Database connection
//   - influxClient: InfluxDB client (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
