package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-deebot/internal/deebot"
	"github.com/nerrad567/gray-logic-deebot/internal/entries"
	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-deebot/internal/platform"
)

// errOffline is returned by the hub factory of maintenance commands, which
// never set entries up.
var errOffline = errors.New("hubs are not started by maintenance commands")

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade stored entries to the current schema version",
		Long: `Applies database schema migrations, then upgrades every stored entry
whose data is older than the integration's current version. Nothing is
connected or set up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := logging.New(cfg.Logging, version)

			db, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-mostly command

			mgr := entries.NewManager(entries.NewSQLiteRepository(db.DB))
			mgr.SetLogger(log.Component("entries"))

			integration := deebot.New(deebot.NewRegistry(), offlineHubFactory,
				platform.NewSensor(nil), platform.NewBinarySensor(), platform.NewVacuum(), platform.NewCamera())
			integration.SetLogger(log.Component("deebot"))
			if err := mgr.Register(ctx, integration); err != nil {
				return fmt.Errorf("registering integration: %w", err)
			}

			migrated, err := mgr.MigrateAll(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d entries\n", migrated)
			return err
		},
	}
}

func offlineHubFactory(context.Context, string, deebot.DataV2) (deebot.Hub, error) {
	return nil, errOffline
}
