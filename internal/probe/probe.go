package probe

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=mocks/mock_prober.go -package=mocks github.com/jpalmerr/devicewatch/internal/probe Prober

// DefaultTimeout bounds a single probe when no timeout is configured.
const DefaultTimeout = 2 * time.Second

// Result is the outcome of a completed probe.
type Result struct {
	// Reachable reports whether the device answered inside the timeout.
	Reachable bool

	// RTT is the round trip time for a reachable device, or the time spent
	// waiting for an unreachable one.
	RTT time.Duration
}

// Prober checks whether a network address is reachable.
//
// Implementations must be safe for concurrent use and must honour ctx.
type Prober interface {
	Probe(ctx context.Context, address string) (Result, error)
}

// ProberFunc adapts a function to the [Prober] interface.
type ProberFunc func(ctx context.Context, address string) (Result, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, address string) (Result, error) {
	return f(ctx, address)
}

// SafeProber wraps a [Prober] so a panic inside it becomes an error.
//
// The full stack trace is logged with a correlation id; the returned error
// carries only the id.
type SafeProber struct {
	next   Prober
	logger *slog.Logger
}

// NewSafeProber wraps next with panic recovery.
func NewSafeProber(next Prober, logger *slog.Logger) *SafeProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &SafeProber{next: next, logger: logger}
}

// Probe calls the wrapped prober, recovering from panics.
func (s *SafeProber) Probe(ctx context.Context, address string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("prober panic",
				"correlation_id", correlationID,
				"address", address,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			res = Result{}
			err = fmt.Errorf("prober panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.next.Probe(ctx, address)
}

// effectiveDeadline returns the earlier of now+timeout and ctx's deadline.
func effectiveDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
