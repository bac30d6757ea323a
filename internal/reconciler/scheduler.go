package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultInterval is the time between sweeps when none is configured.
const DefaultInterval = 30 * time.Second

// Sweeper runs one sweep. [Reconciler] implements it.
type Sweeper interface {
	RunSweep(ctx context.Context) (SweepReport, error)
}

// Scheduler invokes a [Sweeper] on a fixed interval for the lifetime of its
// context.
//
// Sweeps never overlap: the loop runs each sweep to completion before it
// reads the next tick, and a tick that fired while a sweep was still running
// is discarded rather than queued.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	sweeper    Sweeper
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	reportMu   sync.Mutex
	lastReport SweepReport
	lastErr    error
	sweeps     int
}

// NewScheduler creates a [Scheduler].
//
// Parameters:
//   - sweeper: the sweep to run
//   - interval: time between sweeps (DefaultInterval if zero)
//   - runOnStart: whether to sweep immediately when started
//   - logger: logger for sweep summaries
func NewScheduler(sweeper Sweeper, interval time.Duration, runOnStart bool, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sweeper:    sweeper,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Start begins the sweep loop in a background goroutine.
//
// Start is non-blocking and idempotent. If Stop was called before Start,
// Start is a no-op. If ctx is nil, context.Background() is used.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		if s.runOnStart {
			s.sweep(loopCtx)
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.sweep(loopCtx)

				// drop a tick that fired while the sweep was running
				select {
				case <-ticker.C:
					s.logger.Warn("sweep overran interval, skipping tick", "interval", s.interval.String())
				default:
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
//
// Stop is idempotent. Calling Stop before Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// LastSweep returns the most recent sweep report, how many sweeps have run
// and the error of the most recent sweep.
func (s *Scheduler) LastSweep() (SweepReport, int, error) {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	return s.lastReport, s.sweeps, s.lastErr
}

// safeSweep runs one sweep with panic recovery so a failing sweep never
// takes the loop down.
func (s *Scheduler) safeSweep(ctx context.Context) (report SweepReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("sweep panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("sweep panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.sweeper.RunSweep(ctx)
}

func (s *Scheduler) sweep(ctx context.Context) {
	report, err := s.safeSweep(ctx)

	s.reportMu.Lock()
	s.lastReport, s.lastErr = report, err
	s.sweeps++
	s.reportMu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, ErrSweepInProgress):
		s.logger.Warn("sweep skipped", "reason", err.Error())
		return
	case ctx.Err() != nil:
		return
	default:
		// already logged by the sweeper; the next tick retries
		return
	}

	attrs := []any{
		"sweep_id", report.ID,
		"devices", report.Devices,
		"changed", report.Changed,
		"probe_failures", report.ProbeFailures,
		"write_failures", report.WriteFailures,
		"duration_ms", report.Duration.Milliseconds(),
	}
	if report.Changed > 0 || report.ProbeFailures > 0 || report.WriteFailures > 0 {
		s.logger.Info("sweep finished", attrs...)
	} else {
		s.logger.Debug("sweep finished", attrs...)
	}
}
