package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/devicewatch/internal/inventory"
	"github.com/jpalmerr/devicewatch/internal/notify"
	"github.com/jpalmerr/devicewatch/internal/probe"
	"github.com/jpalmerr/devicewatch/internal/store"
)

const (
	// probeGrace is added to the probe timeout to form the hard deadline of
	// a single probe call, so a prober that honours its own timeout always
	// reports before the deadline cuts it off.
	probeGrace = time.Second

	// writeTimeout bounds a status write. Writes run detached from the sweep
	// deadline so a probe result that arrived in time is still persisted.
	writeTimeout = 5 * time.Second
)

var (
	// ErrStoreUnavailable wraps a failure to read the device list.
	ErrStoreUnavailable = errors.New("device store unavailable")

	// ErrSweepInProgress is returned by RunSweep while another sweep runs.
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrProbeFailed wraps a probe that could not be carried out.
	ErrProbeFailed = errors.New("probe failed")
)

// Config tunes a [Reconciler]. Zero values select the defaults.
type Config struct {
	// ProbeTimeout is the per-probe timeout the prober was built with.
	// Defaults to probe.DefaultTimeout.
	ProbeTimeout time.Duration

	// Concurrency is the number of devices probed at once. Defaults to 1,
	// which probes devices one at a time in list order.
	Concurrency int

	// SweepTimeout bounds a whole sweep. Devices not probed when it expires
	// are skipped. Zero means no sweep deadline.
	SweepTimeout time.Duration

	// Logger receives sweep and per-device logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// SweepReport summarises one sweep.
type SweepReport struct {
	ID            string
	Devices       int
	Probed        int
	Changed       int
	ProbeFailures int
	WriteFailures int
	Skipped       int
	Duration      time.Duration
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeChanged
	outcomeProbeFailed
	outcomeWriteFailed
	outcomeSkipped
)

func (r *SweepReport) add(o outcome) {
	switch o {
	case outcomeUnchanged:
		r.Probed++
	case outcomeChanged:
		r.Probed++
		r.Changed++
	case outcomeWriteFailed:
		r.Probed++
		r.WriteFailures++
	case outcomeProbeFailed:
		r.ProbeFailures++
	case outcomeSkipped:
		r.Skipped++
	}
}

type write struct {
	status inventory.Status
	at     time.Time
}

// Reconciler probes devices and propagates reachability changes.
//
// RunSweep and CheckDevice are safe for concurrent use. Work on the same
// device id is serialised, so two writes for one device never interleave.
type Reconciler struct {
	devices      store.DeviceStore
	prober       probe.Prober
	notifier     notify.Notifier
	probeTimeout time.Duration
	concurrency  int
	sweepTimeout time.Duration
	logger       *slog.Logger

	running atomic.Bool
	locks   keyedMutex

	// writes made by this reconciler, used so a sweep compares against a
	// status written after its snapshot was taken
	writesMu sync.Mutex
	writes   map[int64]write
}

// New creates a [Reconciler].
func New(devices store.DeviceStore, prober probe.Prober, notifier notify.Notifier, cfg Config) *Reconciler {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = probe.DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Discard
	}

	return &Reconciler{
		devices:      devices,
		prober:       prober,
		notifier:     notifier,
		probeTimeout: cfg.ProbeTimeout + probeGrace,
		concurrency:  cfg.Concurrency,
		sweepTimeout: cfg.SweepTimeout,
		logger:       cfg.Logger,
		locks:        keyedMutex{locks: make(map[int64]*refMutex)},
		writes:       make(map[int64]write),
	}
}

// RunSweep performs one pass over every device.
//
// A failure to list devices aborts the sweep and is returned wrapped in
// [ErrStoreUnavailable]. Per-device failures are logged, counted in the
// report and never abort the sweep. If another sweep is running RunSweep
// returns [ErrSweepInProgress] without doing anything.
func (r *Reconciler) RunSweep(ctx context.Context) (SweepReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer r.running.Store(false)

	report := SweepReport{ID: uuid.NewString()}
	logger := r.logger.With("sweep_id", report.ID)
	start := time.Now()

	if r.sweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.sweepTimeout)
		defer cancel()
	}

	devices, err := r.devices.ListDevices(ctx)
	if err != nil {
		report.Duration = time.Since(start)
		logger.Error("sweep aborted: cannot list devices", "error", err)
		return report, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	report.Devices = len(devices)

	if r.concurrency == 1 || len(devices) <= 1 {
		for _, d := range devices {
			report.add(r.reconcile(ctx, logger, d, start))
		}
	} else {
		r.reconcileConcurrently(ctx, logger, devices, start, &report)
	}

	r.pruneWrites(start)
	report.Duration = time.Since(start)

	logger.Debug("sweep completed",
		"devices", report.Devices,
		"changed", report.Changed,
		"probe_failures", report.ProbeFailures,
		"write_failures", report.WriteFailures,
		"skipped", report.Skipped,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// reconcileConcurrently fans devices out to a bounded worker pool.
func (r *Reconciler) reconcileConcurrently(ctx context.Context, logger *slog.Logger, devices []inventory.Device, start time.Time, report *SweepReport) {
	jobs := make(chan inventory.Device, len(devices))
	for _, d := range devices {
		jobs <- d
	}
	close(jobs)

	workers := r.concurrency
	if workers > len(devices) {
		workers = len(devices)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				o := r.reconcile(ctx, logger, d, start)
				mu.Lock()
				report.add(o)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

// reconcile probes one device from the sweep snapshot and persists and
// publishes a change.
func (r *Reconciler) reconcile(ctx context.Context, logger *slog.Logger, d inventory.Device, sweepStart time.Time) outcome {
	if ctx.Err() != nil {
		return outcomeSkipped
	}

	unlock := r.locks.lock(d.ID)
	defer unlock()

	res, err := r.probe(ctx, d.Address)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("device skipped: sweep cancelled", "device_id", d.ID, "address", d.Address)
			return outcomeSkipped
		}
		logger.Warn("probe failed", "device_id", d.ID, "address", d.Address, "error", err)
		return outcomeProbeFailed
	}

	previous := d.Status
	if w, ok := r.lastWrite(d.ID); ok && w.at.After(sweepStart) {
		previous = w.status
	}

	next := inventory.StatusFromReachable(res.Reachable)
	if next == previous {
		return outcomeUnchanged
	}

	if err := r.persist(ctx, d.ID, previous, next); err != nil {
		logger.Error("status write failed", "device_id", d.ID, "status", next.String(), "error", err)
		return outcomeWriteFailed
	}

	logger.Info("device status changed",
		"device_id", d.ID,
		"address", d.Address,
		"previous", previous.String(),
		"status", next.String(),
		"rtt_ms", res.RTT.Milliseconds(),
	)
	return outcomeChanged
}

// CheckDevice probes a single device on demand, applying the same
// compare/write/publish rules as a sweep, and returns the device as stored
// afterwards.
//
// Unlike a sweep, a probe that cannot be carried out is returned to the
// caller wrapped in [ErrProbeFailed]. Unknown ids return store.ErrNotFound.
func (r *Reconciler) CheckDevice(ctx context.Context, id int64) (inventory.Device, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	d, err := r.devices.GetDevice(ctx, id)
	if err != nil {
		return inventory.Device{}, fmt.Errorf("get device %d: %w", id, err)
	}

	res, err := r.probe(ctx, d.Address)
	if err != nil {
		r.logger.Warn("probe failed", "device_id", d.ID, "address", d.Address, "error", err)
		return d, fmt.Errorf("%w: device %d: %w", ErrProbeFailed, id, err)
	}

	next := inventory.StatusFromReachable(res.Reachable)
	if next == d.Status {
		return d, nil
	}

	if err := r.persist(ctx, d.ID, d.Status, next); err != nil {
		return d, fmt.Errorf("update status of device %d: %w", id, err)
	}

	r.logger.Info("device status changed",
		"device_id", d.ID,
		"address", d.Address,
		"previous", d.Status.String(),
		"status", next.String(),
		"trigger", "on_demand",
	)
	d.Status = next
	return d, nil
}

func (r *Reconciler) probe(ctx context.Context, address string) (probe.Result, error) {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	return r.prober.Probe(probeCtx, address)
}

// persist writes next and, only once the write succeeded, publishes the
// change. Caller must hold the device lock.
func (r *Reconciler) persist(ctx context.Context, id int64, previous, next inventory.Status) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.devices.UpdateStatus(writeCtx, id, next); err != nil {
		return err
	}

	now := time.Now()
	r.writesMu.Lock()
	r.writes[id] = write{status: next, at: now}
	r.writesMu.Unlock()

	r.notifier.Publish(inventory.NewStatusChangeEvent(id, previous, next, now))
	return nil
}

func (r *Reconciler) lastWrite(id int64) (write, bool) {
	r.writesMu.Lock()
	defer r.writesMu.Unlock()
	w, ok := r.writes[id]
	return w, ok
}

// pruneWrites drops writes older than the given sweep start; the next
// snapshot already reflects them.
func (r *Reconciler) pruneWrites(before time.Time) {
	r.writesMu.Lock()
	defer r.writesMu.Unlock()
	for id, w := range r.writes {
		if w.at.Before(before) {
			delete(r.writes, id)
		}
	}
}
