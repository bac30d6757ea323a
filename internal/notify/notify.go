package notify

import (
	"fmt"
	"log/slog"

	"github.com/jpalmerr/devicewatch/internal/inventory"
)

// Notifier publishes status change events.
//
// Publish must not block on observers and must be safe for concurrent use.
type Notifier interface {
	Publish(event inventory.StatusChangeEvent)
}

// Multi fans each event out to every notifier in order.
//
// A panicking notifier is logged and the remaining notifiers still receive
// the event.
type Multi []Notifier

// Publish forwards event to every notifier.
func (m Multi) Publish(event inventory.StatusChangeEvent) {
	for _, n := range m {
		publish(n, event, slog.Default())
	}
}

// Safe wraps a [Notifier] so a panic in Publish is logged instead of
// propagating into the sweep.
type Safe struct {
	next   Notifier
	logger *slog.Logger
}

// NewSafe wraps n. A nil logger selects slog.Default().
func NewSafe(n Notifier, logger *slog.Logger) *Safe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Safe{next: n, logger: logger}
}

// Publish forwards event with panic recovery.
func (s *Safe) Publish(event inventory.StatusChangeEvent) {
	publish(s.next, event, s.logger)
}

func publish(n Notifier, event inventory.StatusChangeEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notifier panicked",
				"panic", r,
				"notifier", fmt.Sprintf("%T", n),
				"device_id", event.DeviceID,
			)
		}
	}()
	n.Publish(event)
}

// Discard is a Notifier that drops every event.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Publish(inventory.StatusChangeEvent) {}

// Func adapts a callback to [Notifier].
//
// A panicking callback is logged and does not propagate.
type Func struct {
	fn     func(inventory.StatusChangeEvent)
	logger *slog.Logger
}

// NewFunc wraps fn. A nil logger selects slog.Default().
func NewFunc(fn func(inventory.StatusChangeEvent), logger *slog.Logger) *Func {
	if logger == nil {
		logger = slog.Default()
	}
	return &Func{fn: fn, logger: logger}
}

// Publish invokes the callback with panic recovery.
func (f *Func) Publish(event inventory.StatusChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("status callback panicked",
				"panic", r,
				"device_id", event.DeviceID,
			)
		}
	}()
	f.fn(event)
}
