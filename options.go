package devicewatch

import (
	"errors"
	"log/slog"
	"time"
)

// dwConfig holds mutable state during DeviceWatch construction.
type dwConfig struct {
	store         Store
	prober        Prober
	probeTimeout  time.Duration
	sweepInterval time.Duration
	sweepTimeout  time.Duration
	timeoutSet    bool
	sweepOnStart  bool
	concurrency   int
	port          int
	httpDisabled  bool
	jwtSecret     string
	tokenTTL      time.Duration
	logger        *slog.Logger
	notifiers     []Notifier
}

// Option configures a [DeviceWatch] during construction. Options return an
// error if validation fails.
type Option func(*dwConfig) error

// WithStore sets the device [Store]. Required.
func WithStore(s Store) Option {
	return func(cfg *dwConfig) error {
		if s == nil {
			return errors.New("store cannot be nil")
		}
		cfg.store = s
		return nil
	}
}

// WithProber replaces the default unprivileged ICMP prober.
//
// Each probe call is cut off shortly after the [WithProbeTimeout] duration,
// so the prober's own timeout must not exceed it. A slower prober has its
// checks cancelled and counted as probe failures instead of Down.
func WithProber(p Prober) Option {
	return func(cfg *dwConfig) error {
		if p == nil {
			return errors.New("prober cannot be nil")
		}
		cfg.prober = p
		return nil
	}
}

// WithProbeTimeout bounds each probe. Defaults to 2 seconds.
//
// Returns an error if the duration is zero or negative.
func WithProbeTimeout(d time.Duration) Option {
	return func(cfg *dwConfig) error {
		if d <= 0 {
			return errors.New("probe timeout must be positive")
		}
		cfg.probeTimeout = d
		return nil
	}
}

// WithSweepInterval sets the time between sweeps. Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithSweepInterval(d time.Duration) Option {
	return func(cfg *dwConfig) error {
		if d <= 0 {
			return errors.New("sweep interval must be positive")
		}
		cfg.sweepInterval = d
		return nil
	}
}

// WithSweepTimeout caps the duration of a whole sweep. Devices not reached
// before the deadline are left untouched until the next sweep. Defaults to
// the sweep interval; zero disables the cap.
func WithSweepTimeout(d time.Duration) Option {
	return func(cfg *dwConfig) error {
		if d < 0 {
			return errors.New("sweep timeout cannot be negative")
		}
		cfg.sweepTimeout = d
		cfg.timeoutSet = true
		return nil
	}
}

// WithSweepOnStart controls whether [DeviceWatch.Start] sweeps immediately
// or waits for the first interval. Defaults to true.
func WithSweepOnStart(enabled bool) Option {
	return func(cfg *dwConfig) error {
		cfg.sweepOnStart = enabled
		return nil
	}
}

// WithConcurrency sets how many devices are probed at once within a sweep.
// Defaults to 1.
//
// Returns an error if the value is zero or negative.
func WithConcurrency(n int) Option {
	return func(cfg *dwConfig) error {
		if n <= 0 {
			return errors.New("concurrency must be positive")
		}
		cfg.concurrency = n
		return nil
	}
}

// WithPort sets the HTTP API port. Defaults to 3000.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *dwConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithJWTSecret sets the secret used to sign API tokens. Required unless
// [WithoutHTTP] is given.
func WithJWTSecret(secret string) Option {
	return func(cfg *dwConfig) error {
		if secret == "" {
			return errors.New("jwt secret cannot be empty")
		}
		cfg.jwtSecret = secret
		return nil
	}
}

// WithTokenTTL sets the lifetime of issued API tokens. Defaults to 24 hours.
func WithTokenTTL(d time.Duration) Option {
	return func(cfg *dwConfig) error {
		if d <= 0 {
			return errors.New("token ttl must be positive")
		}
		cfg.tokenTTL = d
		return nil
	}
}

// WithoutHTTP runs the reconciliation loop only, with no API server.
func WithoutHTTP() Option {
	return func(cfg *dwConfig) error {
		cfg.httpDisabled = true
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *dwConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithNotifier adds a [Notifier] that receives every status change event,
// for example one returned by [DialNATS].
func WithNotifier(n Notifier) Option {
	return func(cfg *dwConfig) error {
		if n == nil {
			return errors.New("notifier cannot be nil")
		}
		cfg.notifiers = append(cfg.notifiers, n)
		return nil
	}
}

// WithStatusCallback registers a function called for every status change
// event, after the change is persisted.
//
// Multiple callbacks may be registered; they execute in registration order.
// Callbacks must be non-blocking. Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithStatusCallback(cb func(StatusChangeEvent)) Option {
	return func(cfg *dwConfig) error {
		if cb == nil {
			return nil
		}
		cfg.notifiers = append(cfg.notifiers, callback(cb))
		return nil
	}
}

// callback defers wrapping until the logger is known.
type callback func(StatusChangeEvent)

func (c callback) Publish(ev StatusChangeEvent) { c(ev) }
