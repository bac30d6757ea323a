package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// maxDrainBytes bounds how much of a response body is read before the
// connection is returned to the pool.
const maxDrainBytes = 64 << 10

// connection pooling limits for probing many devices
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 2
	defaultIdleConnTimeout     = 60 * time.Second
)

// HTTPProber treats a device as reachable when its embedded web server
// answers an HTTP request with any status code. Routers and printers almost
// always expose an admin page, so this works where ICMP is filtered and the
// open TCP port is not known.
type HTTPProber struct {
	timeout time.Duration
	port    int
	client  *http.Client
}

// NewHTTPProber creates an [HTTPProber]. Zero values select [DefaultTimeout]
// and [DefaultTCPPort].
//
// Timeouts are applied per request via the context, not on the client.
func NewHTTPProber(timeout time.Duration, port int) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if port <= 0 {
		port = DefaultTCPPort
	}
	return &HTTPProber{
		timeout: timeout,
		port:    port,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
			// a redirect is already an answer
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe sends HEAD http://address/ and reports whether anything answered.
func (p *HTTPProber) Probe(ctx context.Context, address string) (Result, error) {
	if address == "" {
		return Result{}, errors.New("empty address")
	}

	host := address
	if _, _, err := net.SplitHostPort(address); err != nil {
		host = net.JoinHostPort(address, strconv.Itoa(p.port))
	}

	reqCtx, cancel := context.WithDeadline(ctx, effectiveDeadline(ctx, p.timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, "http://"+host+"/", nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	rtt := time.Since(start)
	if err != nil {
		return classifyConnError(ctx, err, rtt)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()

	return Result{Reachable: true, RTT: rtt}, nil
}

// Close releases idle pooled connections. Safe to call multiple times.
func (p *HTTPProber) Close() {
	if p == nil || p.client == nil {
		return
	}
	if transport, ok := p.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
