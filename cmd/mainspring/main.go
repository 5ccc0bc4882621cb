package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fernwall/mainspring/cmd/mainspring/commands"
	"github.com/fernwall/mainspring/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mainspring",
	Short: "Mainspring - Preventive maintenance scheduling engine",
	Long: `Mainspring - Recurrence scheduling and work-order generation.

Mainspring keeps preventive maintenance plans firing on their cadence:
recurrence schedules are compiled into durable triggers, a ticker fires
them, and each fire generates a work order or an advance notification.

Available commands:
  serve   - Start the scheduling engine and HTTP API
  db      - Manage the Mainspring database
  version - Show version information

Examples:
  mainspring serve                 # Start the engine
  mainspring db migrate            # Apply pending schema migrations
  mainspring db stats              # Show schedule and trigger counts
  mainspring version --json        # Version info as JSON`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON instead of console output")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
