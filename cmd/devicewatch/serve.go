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

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sweep loop and the HTTP API",
	Long: `Run devicewatch as a service.

The service will:
  - Open (creating if needed) the SQLite database
  - Sweep every device on the configured interval
  - Serve the authenticated HTTP API and push streams
  - Publish status changes to NATS when nats.url is set

Without --config the built-in defaults are used. The service runs until
interrupted (Ctrl+C) or it receives SIGTERM.

Example:
  devicewatch serve
  devicewatch serve -c /etc/devicewatch/config.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "path to config file")
}

func runServe(cmd *cobra.Command, args []string) error {
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
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	opts := append(config.BuildOptions(cfg, logger), devicewatch.WithStore(db))

	if cfg.NATS.Enabled() {
		pub, err := devicewatch.DialNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, devicewatch.WithNotifier(pub))
	}

	logger.Info("starting devicewatch",
		"database", cfg.Database,
		"port", cfg.Port,
		"sweep_interval", cfg.SweepInterval.Duration().String(),
		"probe", cfg.Probe.Method,
		"nats", cfg.NATS.Enabled(),
	)

	dw, err := devicewatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create devicewatch: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- dw.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
