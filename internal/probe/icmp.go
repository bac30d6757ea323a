package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	// protocolICMP is the IANA protocol number for ICMPv4.
	protocolICMP = 1

	maxReplySize = 1500
)

var echoPayload = []byte("devicewatch-probe")

// ICMPProber sends one ICMP echo request per probe and waits for the reply.
//
// In privileged mode it uses a raw "ip4:icmp" socket, which needs root or
// CAP_NET_RAW. Otherwise it uses an unprivileged "udp4" datagram socket,
// which on Linux needs the process group inside net.ipv4.ping_group_range.
type ICMPProber struct {
	timeout    time.Duration
	privileged bool
	id         int
	seq        atomic.Uint32
	resolver   *net.Resolver
}

// NewICMPProber creates an [ICMPProber]. A zero timeout selects [DefaultTimeout].
func NewICMPProber(timeout time.Duration, privileged bool) *ICMPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ICMPProber{
		timeout:    timeout,
		privileged: privileged,
		id:         os.Getpid() & 0xffff,
		resolver:   net.DefaultResolver,
	}
}

// Probe pings address once.
//
// No reply before the probe timeout yields Reachable=false with a nil error.
// If ctx ends first, ctx's error is returned instead.
func (p *ICMPProber) Probe(ctx context.Context, address string) (Result, error) {
	ip, err := resolveIPv4(ctx, p.resolver, address)
	if err != nil {
		return Result{}, err
	}

	network, dst := "udp4", net.Addr(&net.UDPAddr{IP: ip})
	if p.privileged {
		network, dst = "ip4:icmp", &net.IPAddr{IP: ip}
	}

	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return Result{}, fmt.Errorf("listen %s: %w", network, err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(effectiveDeadline(ctx, p.timeout)); err != nil {
		return Result{}, fmt.Errorf("set deadline: %w", err)
	}
	// unblock ReadFrom when the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: echoPayload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return Result{}, fmt.Errorf("marshal echo request: %w", err)
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return Result{}, fmt.Errorf("send echo request to %s: %w", ip, err)
	}

	rb := make([]byte, maxReplySize)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Result{Reachable: false, RTT: time.Since(start)}, nil
			}
			return Result{}, fmt.Errorf("read echo reply: %w", err)
		}

		if !peerIP(peer).Equal(ip) {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, rb[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// the kernel rewrites the identifier of unprivileged echo sockets
		if p.privileged && echo.ID != p.id {
			continue
		}
		return Result{Reachable: true, RTT: time.Since(start)}, nil
	}
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}

// resolveIPv4 returns the first IPv4 address for host, which may already be
// a literal address.
func resolveIPv4(ctx context.Context, resolver *net.Resolver, host string) (net.IP, error) {
	if host == "" {
		return nil, errors.New("empty address")
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("address %q is not IPv4", host)
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("resolve %q: no IPv4 address", host)
}
