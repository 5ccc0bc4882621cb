package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fernwall/mainspring/config"
	"github.com/fernwall/mainspring/db"
	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/logger"
	"github.com/fernwall/mainspring/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage Mainspring database",
	Long: sym.DB + ` db — Manage Mainspring database operations

Examples:
  mainspring db migrate           # Apply pending schema migrations
  mainspring db stats             # Show schedule, trigger and work-order counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display row counts for preventive maintenance plans, schedules, triggers, work orders and recent trigger executions.",
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func openDatabase() (*sql.DB, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to load configuration")
	}

	path := cfg.Database.Path
	if dbPathFlag != "" {
		path = dbPathFlag
	}

	database, err := db.Open(path, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, path, nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "migration failed")
	}

	fmt.Printf("%s Database migrated: %s\n", sym.DB, path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "migration failed")
	}

	counts := []struct {
		label string
		query string
	}{
		{"Maintenance Plans", "SELECT COUNT(*) FROM preventive_maintenances"},
		{"Schedules", "SELECT COUNT(*) FROM schedules"},
		{"Armed Schedules", "SELECT COUNT(*) FROM schedules WHERE state = 'ARMED'"},
		{"Triggers", "SELECT COUNT(*) FROM triggers"},
		{"Pending Triggers", "SELECT COUNT(*) FROM triggers WHERE next_fire_at IS NOT NULL"},
		{"Work Orders", "SELECT COUNT(*) FROM work_orders"},
		{"Open Work Orders", "SELECT COUNT(*) FROM work_orders WHERE completed_at IS NULL"},
		{"Executions (24h)", "SELECT COUNT(*) FROM trigger_executions WHERE started_at >= datetime('now', '-1 day')"},
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:      %s\n", path)

	for _, c := range counts {
		var n int
		if err := database.QueryRow(c.query).Scan(&n); err != nil && err != sql.ErrNoRows {
			return errors.Wrapf(err, "failed to count %s", c.label)
		}
		fmt.Printf("%-19s %d\n", c.label+":", n)
	}

	return nil
}
