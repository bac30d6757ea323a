package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/devicewatch"
	"github.com/jpalmerr/devicewatch/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single sweep and print the report",
	Long: `Probe every device once, record status changes and exit.

Useful from cron or to check connectivity after editing the inventory.
The HTTP API is not started. NATS publishing still applies when configured.

Example:
  devicewatch sweep -c config.yaml`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringP("config", "c", "", "path to config file")
}

func runSweep(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := devicewatch.OpenSQLite(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	opts := append(config.BuildOptions(cfg, logger),
		devicewatch.WithStore(db),
		devicewatch.WithoutHTTP(),
	)

	if cfg.NATS.Enabled() {
		pub, err := devicewatch.DialNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, devicewatch.WithNotifier(pub))
	}

	dw, err := devicewatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create devicewatch: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := dw.RunSweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sweep %s finished in %s\n", report.ID, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Devices:        %d\n", report.Devices)
	fmt.Fprintf(out, "  Probed:         %d\n", report.Probed)
	fmt.Fprintf(out, "  Changed:        %d\n", report.Changed)
	fmt.Fprintf(out, "  Probe failures: %d\n", report.ProbeFailures)
	fmt.Fprintf(out, "  Write failures: %d\n", report.WriteFailures)
	fmt.Fprintf(out, "  Skipped:        %d\n", report.Skipped)

	return nil
}
