package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/devicewatch/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a devicewatch configuration file without starting anything.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  devicewatch validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:           %d\n", cfg.Port)
	fmt.Fprintf(out, "  Database:       %s\n", cfg.Database)
	fmt.Fprintf(out, "  Sweep interval: %s\n", cfg.SweepInterval.Duration())
	fmt.Fprintf(out, "  Probe:          %s (timeout %s)\n", cfg.Probe.Method, cfg.Probe.Timeout.Duration())
	fmt.Fprintf(out, "  Concurrency:    %d\n", cfg.Concurrency)
	if cfg.NATS.Enabled() {
		fmt.Fprintf(out, "  NATS:           %s (%s.<id>)\n", cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	}

	return nil
}
