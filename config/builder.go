package config

import (
	"log/slog"

	"github.com/jpalmerr/devicewatch"
)

// BuildProber converts the probe section into an SDK Prober.
func BuildProber(pc ProbeConfig) devicewatch.Prober {
	switch pc.Method {
	case ProbeTCP:
		return devicewatch.NewTCPProber(pc.Timeout.Duration(), pc.Port)
	case ProbeHTTP:
		return devicewatch.NewHTTPProber(pc.Timeout.Duration(), pc.Port)
	default:
		return devicewatch.NewICMPProber(pc.Timeout.Duration(), pc.Privileged)
	}
}

// BuildOptions converts parsed configuration into SDK options.
//
// The store and NATS notifier are not included: they own resources the
// caller must open and close.
func BuildOptions(cfg *Config, logger *slog.Logger) []devicewatch.Option {
	opts := []devicewatch.Option{
		devicewatch.WithProber(BuildProber(cfg.Probe)),
		devicewatch.WithProbeTimeout(cfg.Probe.Timeout.Duration()),
		devicewatch.WithSweepInterval(cfg.SweepInterval.Duration()),
		devicewatch.WithSweepOnStart(cfg.RunOnStart()),
		devicewatch.WithConcurrency(cfg.Concurrency),
		devicewatch.WithPort(cfg.Port),
		devicewatch.WithJWTSecret(cfg.JWTSecret),
	}

	if cfg.SweepTimeout != 0 {
		opts = append(opts, devicewatch.WithSweepTimeout(cfg.SweepTimeout.Duration()))
	}
	if cfg.TokenTTL != 0 {
		opts = append(opts, devicewatch.WithTokenTTL(cfg.TokenTTL.Duration()))
	}
	if logger != nil {
		opts = append(opts, devicewatch.WithLogger(logger))
	}

	return opts
}
