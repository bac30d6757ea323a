package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProberFunc(t *testing.T) {
	var got string
	p := ProberFunc(func(_ context.Context, address string) (Result, error) {
		got = address
		return Result{Reachable: true}, nil
	})

	res, err := p.Probe(context.Background(), "10.0.0.5")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if !res.Reachable {
		t.Error("Probe().Reachable = false, want true")
	}
	if got != "10.0.0.5" {
		t.Errorf("address = %q, want %q", got, "10.0.0.5")
	}
}

func TestSafeProber_PassesThrough(t *testing.T) {
	wantErr := errors.New("boom")
	sp := NewSafeProber(ProberFunc(func(context.Context, string) (Result, error) {
		return Result{}, wantErr
	}), testLogger())

	_, err := sp.Probe(context.Background(), "10.0.0.5")
	if !errors.Is(err, wantErr) {
		t.Errorf("Probe() error = %v, want %v", err, wantErr)
	}
}

func TestSafeProber_RecoversPanic(t *testing.T) {
	sp := NewSafeProber(ProberFunc(func(context.Context, string) (Result, error) {
		panic("nil map")
	}), testLogger())

	res, err := sp.Probe(context.Background(), "10.0.0.5")
	if err == nil {
		t.Fatal("Probe() error = nil, want panic error")
	}
	if !strings.Contains(err.Error(), "correlation_id") {
		t.Errorf("error %q should carry a correlation id", err)
	}
	if res.Reachable {
		t.Error("Probe().Reachable = true after panic")
	}
}

func TestEffectiveDeadline(t *testing.T) {
	// no context deadline: timeout wins
	before := time.Now()
	d := effectiveDeadline(context.Background(), time.Second)
	if d.Before(before.Add(time.Second)) {
		t.Errorf("effectiveDeadline() = %v, want >= now+1s", d)
	}

	// earlier context deadline wins
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ctxDeadline, _ := ctx.Deadline()
	if got := effectiveDeadline(ctx, time.Hour); !got.Equal(ctxDeadline) {
		t.Errorf("effectiveDeadline() = %v, want %v", got, ctxDeadline)
	}
}
