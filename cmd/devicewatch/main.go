// Package main is the entry point for the devicewatch CLI.
//
// Usage:
//
//	devicewatch serve -c config.yaml    # Run the sweep loop and API
//	devicewatch sweep -c config.yaml    # Run a single sweep and exit
//	devicewatch validate -c config.yaml # Validate configuration
//	devicewatch version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/devicewatch/config"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "devicewatch",
	Short: "Keep recorded device status in line with reality",
	Long: `devicewatch periodically probes the network devices stored in a SQLite
database, records which ones are up or down, and pushes every change to
API clients over Server-Sent Events and WebSocket.

Quick start:
  1. Run: devicewatch serve
  2. Register: curl -XPOST localhost:3000/api/auth/register \
       -d '{"username":"admin","password":"admin"}'
  3. Stream changes from /api/events with the returned token

Example config:
  port: 3000
  database: local.db
  sweep_interval: 30s
  probe:
    method: icmp
    timeout: 2s`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this devicewatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "devicewatch %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use at the level given by --log-level.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", raw, err)
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}

// loadConfig reads the file named by --config, or the defaults when unset.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}
