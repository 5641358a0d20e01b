package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-deebot/internal/deebot"
	"github.com/nerrad567/gray-logic-deebot/internal/entries"
)

const redactedPassword = "********"

func newEntriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Inspect and create stored config entries",
	}
	cmd.AddCommand(newEntriesListCmd(), newEntriesAddCmd())
	return cmd
}

func newEntriesListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only command

			list, err := entries.NewSQLiteRepository(db.DB).List(cmd.Context())
			if err != nil {
				return err
			}
			for i := range list {
				redact(&list[i])
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			return printEntries(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newEntriesAddCmd() *cobra.Command {
	var (
		title     string
		data      deebot.DataV2
		noVerify  bool
		printJSON bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a new Deebot account entry",
		Long: `Stores an entry at the current schema version. The entry is set up the
next time "deebotd serve" starts; a running server picks it up on reload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			if title == "" {
				title = data.Username
			}
			data.VerifySSL = !noVerify

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // single insert

			e := &entries.Entry{
				ID:      uuid.NewString(),
				Domain:  deebot.Domain,
				Title:   title,
				Version: deebot.Version,
				Data:    data.ToMap(),
				State:   entries.StateNotLoaded,
			}
			if err := entries.NewSQLiteRepository(db.DB).Create(cmd.Context(), e); err != nil {
				return fmt.Errorf("storing entry: %w", err)
			}

			if printJSON {
				redact(e)
				return json.NewEncoder(cmd.OutOrStdout()).Encode(e)
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&title, "title", "", "entry title (default: username)")
	f.StringVar(&data.Username, "username", "", "account username")
	f.StringVar(&data.Password, "password", "", "account password")
	f.StringVar(&data.Country, "country", "", "account country code, e.g. gb")
	f.StringVar(&data.Continent, "continent", "", "account continent code, e.g. eu")
	f.StringSliceVar(&data.Devices, "device", nil, "robot device id (repeatable; none selects every robot)")
	f.BoolVar(&noVerify, "insecure-skip-verify", false, "disable TLS certificate verification")
	f.BoolVar(&printJSON, "json", false, "print the stored entry as JSON")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func printEntries(w io.Writer, list []entries.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOMAIN\tTITLE\tVERSION\tSTATE\tDEVICES")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.Domain, e.Title, e.Version, e.State, deviceSummary(e))
	}
	return tw.Flush()
}

// deviceSummary lists the selected robots of a current entry. Older
// entries show "-" until migrated.
func deviceSummary(e entries.Entry) string {
	if e.Domain != deebot.Domain || e.Version != deebot.Version {
		return "-"
	}
	data, err := deebot.DecodeV2(e.Data)
	if err != nil {
		return "invalid"
	}
	if len(data.Devices) == 0 {
		return "*"
	}
	return strings.Join(data.Devices, ",")
}

func redact(e *entries.Entry) {
	if _, ok := e.Data["password"]; ok {
		e.Data["password"] = redactedPassword
	}
}
