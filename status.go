package devicewatch

import (
	"log/slog"
	"time"

	"github.com/jpalmerr/devicewatch/internal/inventory"
	"github.com/jpalmerr/devicewatch/internal/notify"
	"github.com/jpalmerr/devicewatch/internal/probe"
	"github.com/jpalmerr/devicewatch/internal/reconciler"
	"github.com/jpalmerr/devicewatch/internal/store"
)

// Status is the recorded reachability of a device: [StatusUp] or [StatusDown].
// It serialises as 1 or 0.
type Status = inventory.Status

const (
	StatusDown = inventory.StatusDown
	StatusUp   = inventory.StatusUp
)

// Device is a monitored network device.
type Device = inventory.Device

// DeviceType is the category of a device.
type DeviceType = inventory.DeviceType

const (
	TypeRouter  = inventory.TypeRouter
	TypePrinter = inventory.TypePrinter
	TypeBox     = inventory.TypeBox
)

// StatusChangeEvent is emitted after a device's status change has been
// persisted.
type StatusChangeEvent = inventory.StatusChangeEvent

// SweepReport summarises one reconciliation sweep.
type SweepReport = reconciler.SweepReport

// Store persists devices, their category rows and API users.
type Store = store.Store

// Prober performs a single reachability check against an address.
type Prober = probe.Prober

// ProbeResult is the outcome of a completed probe.
type ProbeResult = probe.Result

// Notifier receives status change events.
type Notifier = notify.Notifier

// Errors returned by [DeviceWatch.RunSweep] and [DeviceWatch.CheckDevice].
var (
	ErrStoreUnavailable = reconciler.ErrStoreUnavailable
	ErrSweepInProgress  = reconciler.ErrSweepInProgress
	ErrProbeFailed      = reconciler.ErrProbeFailed
	ErrNotFound         = store.ErrNotFound
)

// OpenSQLite opens (creating if needed) a SQLite device database.
func OpenSQLite(path string) (*store.SQLiteStore, error) {
	return store.Open(path)
}

// NewMemoryStore returns an in-memory [Store] seeded with devices.
func NewMemoryStore(devices ...Device) *store.MemoryStore {
	return store.NewMemoryStore(devices...)
}

// NewICMPProber returns a [Prober] that sends one ICMP echo per check.
// Unprivileged probers use datagram ICMP sockets; privileged ones need
// CAP_NET_RAW.
func NewICMPProber(timeout time.Duration, privileged bool) Prober {
	return probe.NewICMPProber(timeout, privileged)
}

// NewTCPProber returns a [Prober] that treats a completed or refused TCP
// handshake on port as reachable.
func NewTCPProber(timeout time.Duration, port int) Prober {
	return probe.NewTCPProber(timeout, port)
}

// NewHTTPProber returns a [Prober] that treats any HTTP answer from the
// device's web interface on port as reachable.
func NewHTTPProber(timeout time.Duration, port int) Prober {
	return probe.NewHTTPProber(timeout, port)
}

// DialNATS connects to a NATS server and returns a [Notifier] publishing
// events on "<prefix>.<device id>". Close it on shutdown to flush.
func DialNATS(url, prefix string, logger *slog.Logger) (*notify.NATSPublisher, error) {
	return notify.DialNATS(url, prefix, logger)
}
