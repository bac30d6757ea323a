package devicewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/devicewatch/internal/auth"
	"github.com/jpalmerr/devicewatch/internal/notify"
	"github.com/jpalmerr/devicewatch/internal/probe"
	"github.com/jpalmerr/devicewatch/internal/reconciler"
	"github.com/jpalmerr/devicewatch/internal/server"
)

const (
	defaultPort          = 3000
	defaultSweepInterval = reconciler.DefaultInterval
	defaultConcurrency   = 1
)

// DeviceWatch is the main orchestrator for device reconciliation and the
// HTTP API.
//
// It is created using [New] with functional options and started with
// [DeviceWatch.Start]. The caller controls the lifecycle via the context
// passed to Start; cancel it to trigger graceful shutdown.
type DeviceWatch struct {
	store         Store
	reconciler    *reconciler.Reconciler
	hub           *notify.Hub
	auth          *auth.Service
	sweepInterval time.Duration
	sweepOnStart  bool
	port          int
	logger        *slog.Logger
}

// New creates a [DeviceWatch] with the given options.
//
// A store must be configured via [WithStore], and a JWT secret via
// [WithJWTSecret] unless [WithoutHTTP] is given. Other options default to:
//   - Sweep interval: 30 seconds, sweeping on start
//   - Sweep timeout: the sweep interval
//   - Probe: unprivileged ICMP echo with a 2 second timeout
//   - Concurrency: 1
//   - Port: 3000
func New(opts ...Option) (*DeviceWatch, error) {
	cfg := &dwConfig{
		sweepInterval: defaultSweepInterval,
		sweepOnStart:  true,
		probeTimeout:  probe.DefaultTimeout,
		concurrency:   defaultConcurrency,
		port:          defaultPort,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.store == nil {
		return nil, errors.New("a store is required")
	}
	if !cfg.httpDisabled && cfg.jwtSecret == "" {
		return nil, errors.New("a jwt secret is required to serve the API")
	}

	if !cfg.timeoutSet {
		cfg.sweepTimeout = cfg.sweepInterval
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	prober := cfg.prober
	if prober == nil {
		prober = probe.NewICMPProber(cfg.probeTimeout, false)
	}

	hub := notify.NewHub()
	notifiers := notify.Multi{hub}
	for _, n := range cfg.notifiers {
		if cb, ok := n.(callback); ok {
			notifiers = append(notifiers, notify.NewFunc(cb, logger))
			continue
		}
		notifiers = append(notifiers, notify.NewSafe(n, logger))
	}

	dw := &DeviceWatch{
		store: cfg.store,
		reconciler: reconciler.New(cfg.store, probe.NewSafeProber(prober, logger), notifiers, reconciler.Config{
			ProbeTimeout: cfg.probeTimeout,
			Concurrency:  cfg.concurrency,
			SweepTimeout: cfg.sweepTimeout,
			Logger:       logger,
		}),
		hub:           hub,
		sweepInterval: cfg.sweepInterval,
		sweepOnStart:  cfg.sweepOnStart,
		port:          cfg.port,
		logger:        logger,
	}

	if !cfg.httpDisabled {
		svc, err := auth.NewService(cfg.store, auth.Config{Secret: cfg.jwtSecret, TokenTTL: cfg.tokenTTL})
		if err != nil {
			return nil, err
		}
		dw.auth = svc
	}

	return dw, nil
}

// Start runs periodic sweeps and serves the API.
//
// Start blocks until ctx is cancelled. The API server binds before the first
// sweep so a port conflict is reported without touching any device.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to start.
func (dw *DeviceWatch) Start(ctx context.Context) error {
	dw.logger.Info("devicewatch starting",
		"sweep_interval", dw.sweepInterval.String(),
		"http", dw.auth != nil,
	)

	if ctx.Err() != nil {
		return nil
	}

	if dw.auth != nil {
		srv := server.NewServer(server.Config{
			Store:   dw.store,
			Checker: dw.reconciler,
			Auth:    dw.auth,
			Events:  dw.hub,
			Port:    dw.port,
			Logger:  dw.logger,
		})
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	scheduler := reconciler.NewScheduler(dw.reconciler, dw.sweepInterval, dw.sweepOnStart, dw.logger)
	scheduler.Start(ctx)

	<-ctx.Done()
	scheduler.Stop()
	dw.logger.Info("devicewatch stopped")
	return nil
}

// RunSweep performs one reconciliation sweep outside the schedule.
//
// Returns [ErrSweepInProgress] if another sweep is running and wraps
// [ErrStoreUnavailable] if the device list cannot be read.
func (dw *DeviceWatch) RunSweep(ctx context.Context) (SweepReport, error) {
	return dw.reconciler.RunSweep(ctx)
}

// CheckDevice probes one device and records its status, publishing an event
// if it changed. Errors wrap [ErrNotFound] or [ErrProbeFailed].
func (dw *DeviceWatch) CheckDevice(ctx context.Context, id int64) (Device, error) {
	return dw.reconciler.CheckDevice(ctx, id)
}

// Subscribe returns a channel of status change events. Slow subscribers
// drop events rather than stall sweeps. Call [DeviceWatch.Unsubscribe] when
// done.
func (dw *DeviceWatch) Subscribe() <-chan StatusChangeEvent {
	return dw.hub.Subscribe()
}

// Unsubscribe releases a channel returned by [DeviceWatch.Subscribe].
func (dw *DeviceWatch) Unsubscribe(ch <-chan StatusChangeEvent) {
	dw.hub.Unsubscribe(ch)
}

// Port returns the configured HTTP port.
func (dw *DeviceWatch) Port() int {
	return dw.port
}

// SweepInterval returns the configured time between sweeps.
func (dw *DeviceWatch) SweepInterval() time.Duration {
	return dw.sweepInterval
}
