// Package main is locmockctl, the command-line client of the LocMock control API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	apiAddr  string
	apiToken string
	timeout  time.Duration
	asJSON   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "locmockctl",
	Short: "Control a running LocMock daemon",
	Long: `locmockctl drives the LocMock daemon over its HTTP control API.

Start a simulation at a coordinate, move it, switch between standard and
enhanced mode, and inspect the daemon's debug log.`,
	SilenceUsage: true,
}

var startCmd = &cobra.Command{
	Use:   "start <lat, lon>",
	Short: "Start simulating a location",
	Example: `  locmockctl start 39.9087,116.3975
  locmockctl start 39.9087 116.3975 --enhanced`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running simulation",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Switch between standard and enhanced mode",
	Long: `Switch between standard mode (exact target every 100ms) and enhanced
mode (jittered target with varying accuracy every 50ms). A running
simulation restarts at the same target in the new mode.`,
	Args: cobra.NoArgs,
	RunE: runToggle,
}

var retargetCmd = &cobra.Command{
	Use:   "retarget <lat, lon>",
	Short: "Move the running simulation to a new coordinate",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runRetarget,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the simulation status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Check that the daemon may mock locations",
	Args:  cobra.NoArgs,
	RunE:  runPermission,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query the daemon's debug log",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

var (
	startEnhanced bool
	logLevel      string
	logTag        string
	logQuery      string
	logStats      bool
	logClear      bool
	logSave       bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiAddr, "addr", "a", envOr("LOCMOCK_ADDR", "http://127.0.0.1:8765"), "daemon address (or set LOCMOCK_ADDR)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("LOCMOCK_TOKEN"), "API token (or set LOCMOCK_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON responses")

	startCmd.Flags().BoolVarP(&startEnhanced, "enhanced", "e", false, "add GPS-like jitter and varying accuracy")

	logsCmd.Flags().StringVar(&logLevel, "level", "", "only entries at this level")
	logsCmd.Flags().StringVar(&logTag, "tag", "", "only entries from this component")
	logsCmd.Flags().StringVarP(&logQuery, "query", "q", "", "case-insensitive search")
	logsCmd.Flags().BoolVar(&logStats, "stats", false, "print counts per level")
	logsCmd.Flags().BoolVar(&logClear, "clear", false, "clear the log")
	logsCmd.Flags().BoolVar(&logSave, "save", false, "write the log to a file on the daemon host")
	logsCmd.MarkFlagsMutuallyExclusive("stats", "clear", "save")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(retargetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(permissionCmd)
	rootCmd.AddCommand(logsCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
