package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/teranos/healthtwin/am"
	"github.com/teranos/healthtwin/db"
	"github.com/teranos/healthtwin/display"
	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
	"github.com/teranos/healthtwin/store"
	"github.com/teranos/healthtwin/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.Short("db", "Manage the twin database"),
	Long: sym.DB + ` db — Manage the twin database

Examples:
  twin db stats                   # Twin and snapshot counts, schema versions
  twin db migrate                 # Apply pending migrations`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Args:  cobra.NoArgs,
	RunE:  runDbStats,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbMigrateCmd)
}

type dbStats struct {
	Path       string   `json:"path"`
	Migrations []string `json:"migrations"`
	store.Stats
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	path, _ := am.GetDatabasePath()
	applied, err := db.AppliedVersions(database)
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}
	st, err := store.New(database, store.WithLogger(logger.ComponentLogger(logger.ComponentStore))).Stats(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "failed to query storage stats")
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), dbStats{Path: path, Migrations: applied, Stats: st})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Database Statistics\n", sym.DB)
	fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Fprintf(out, "Database Path:  %s\n", path)
	fmt.Fprintf(out, "Migrations:     %v\n", applied)
	fmt.Fprintf(out, "Twins:          %d\n", st.Twins)
	fmt.Fprintf(out, "Snapshots:      %d\n", st.Snapshots)

	versions := make([]string, 0, len(st.Versions))
	for v := range st.Versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	for _, v := range versions {
		fmt.Fprintf(out, "  format %-8s %d twins\n", v, st.Versions[v])
	}
	return nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	applied, err := db.AppliedVersions(database)
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema at %v\n", sym.Normal, applied)
	return nil
}
