package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// DefaultTCPPort is dialled when an address carries no port.
const DefaultTCPPort = 80

// TCPProber treats a device as reachable when a TCP handshake to it
// completes or is actively refused. Useful where ICMP is filtered.
type TCPProber struct {
	timeout time.Duration
	port    int
	dialer  *net.Dialer
}

// NewTCPProber creates a [TCPProber]. Zero values select [DefaultTimeout]
// and [DefaultTCPPort].
func NewTCPProber(timeout time.Duration, port int) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if port <= 0 {
		port = DefaultTCPPort
	}
	return &TCPProber{
		timeout: timeout,
		port:    port,
		dialer:  &net.Dialer{},
	}
}

// Probe dials address, adding the configured port if address has none.
func (p *TCPProber) Probe(ctx context.Context, address string) (Result, error) {
	if address == "" {
		return Result{}, errors.New("empty address")
	}

	target := address
	if _, _, err := net.SplitHostPort(address); err != nil {
		target = net.JoinHostPort(address, strconv.Itoa(p.port))
	}

	dialCtx, cancel := context.WithDeadline(ctx, effectiveDeadline(ctx, p.timeout))
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", target)
	rtt := time.Since(start)
	if err == nil {
		_ = conn.Close()
		return Result{Reachable: true, RTT: rtt}, nil
	}

	return classifyConnError(ctx, err, rtt)
}

// classifyConnError maps a failed connection attempt to a probe outcome.
// Refusals mean the host is up, timeouts and unreachable routes mean it is
// down, and anything else means the probe could not be performed.
func classifyConnError(ctx context.Context, err error, rtt time.Duration) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return Result{}, err
	case errors.Is(err, syscall.ECONNREFUSED):
		// the host answered with a reset
		return Result{Reachable: true, RTT: rtt}, nil
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return Result{Reachable: false, RTT: rtt}, nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Result{Reachable: false, RTT: rtt}, nil
	}
	return Result{}, err
}
