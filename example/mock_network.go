package main

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jpalmerr/devicewatch"
)

// mockState tracks reachability and next flip time for a single address.
type mockState struct {
	up           bool
	nextChangeAt time.Time
}

// mockNetwork is a Prober whose devices flip between up and down every
// 20-60 seconds, so the demo produces status changes without real hosts.
type mockNetwork struct {
	mu     sync.Mutex
	states map[string]*mockState
}

func newMockNetwork() *mockNetwork {
	return &mockNetwork{states: make(map[string]*mockState)}
}

func nextFlip() time.Time {
	return time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
}

func (n *mockNetwork) Probe(ctx context.Context, address string) (devicewatch.ProbeResult, error) {
	// simulate round-trip variance
	rtt := time.Duration(5+rand.Intn(45)) * time.Millisecond
	select {
	case <-time.After(rtt):
	case <-ctx.Done():
		return devicewatch.ProbeResult{}, ctx.Err()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	state, exists := n.states[address]
	if !exists {
		state = &mockState{up: true, nextChangeAt: nextFlip()}
		n.states[address] = state
	}

	if time.Now().After(state.nextChangeAt) {
		state.up = !state.up
		state.nextChangeAt = nextFlip()
		slog.Debug("mock network flip", "address", address, "up", state.up)
	}

	if !state.up {
		return devicewatch.ProbeResult{Reachable: false}, nil
	}
	return devicewatch.ProbeResult{Reachable: true, RTT: rtt}, nil
}
