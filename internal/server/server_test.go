package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jpalmerr/devicewatch/internal/auth"
	"github.com/jpalmerr/devicewatch/internal/inventory"
	"github.com/jpalmerr/devicewatch/internal/notify"
	"github.com/jpalmerr/devicewatch/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type checkerFunc func(ctx context.Context, id int64) (inventory.Device, error)

func (f checkerFunc) CheckDevice(ctx context.Context, id int64) (inventory.Device, error) {
	return f(ctx, id)
}

type fixture struct {
	srv   *Server
	store *store.MemoryStore
	hub   *notify.Hub
	auth  *auth.Service
	token string
}

// newFixture builds a server over an in-memory store with one registered
// user whose token is returned in the fixture.
func newFixture(t *testing.T, checker DeviceChecker) *fixture {
	t.Helper()

	ms := store.NewMemoryStore()
	svc, err := auth.NewService(ms, auth.Config{Secret: "test", BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	sess, err := svc.Register(context.Background(), "admin", "admin")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if checker == nil {
		checker = checkerFunc(func(context.Context, int64) (inventory.Device, error) {
			return inventory.Device{}, store.ErrNotFound
		})
	}

	hub := notify.NewHub()
	srv := NewServer(Config{
		Store:   ms,
		Checker: checker,
		Auth:    svc,
		Events:  hub,
		Logger:  testLogger(),
	})
	return &fixture{srv: srv, store: ms, hub: hub, auth: svc, token: sess.Token}
}

func waitForSubscribers(t *testing.T, hub *notify.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", hub.Subscribers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		f.srv.handleSSE(rec, req)
		close(done)
	}()

	waitForSubscribers(t, f.hub, 1)
	f.hub.Publish(inventory.NewStatusChangeEvent(7, inventory.StatusDown, inventory.StatusUp, time.Now()))

	// give time for update to be written
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1; body: %s", len(events), rec.Body.String())
	}
	if events[0].DeviceID != 7 || events[0].Status != inventory.StatusUp {
		t.Errorf("event = %+v, want device 7 up", events[0])
	}
	if !strings.Contains(rec.Body.String(), "event: "+EventName+"\n") {
		t.Errorf("missing event name line, body: %s", rec.Body.String())
	}
}

func TestHandleSSE_Headers(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	f.srv.handleSSE(rec, req)

	headers := map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
	for k, want := range headers {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestHandleSSE_UnsubscribesOnDisconnect(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.srv.handleSSE(rec, req)
		close(done)
	}()

	waitForSubscribers(t, f.hub, 1)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after client disconnect")
	}
	if n := f.hub.Subscribers(); n != 0 {
		t.Errorf("subscribers after disconnect = %d, want 0", n)
	}
}

type nonFlushWriter struct {
	header http.Header
	status int
	body   strings.Builder
}

func (n *nonFlushWriter) Header() http.Header {
	if n.header == nil {
		n.header = http.Header{}
	}
	return n.header
}

func (n *nonFlushWriter) Write(b []byte) (int, error) { return n.body.Write(b) }
func (n *nonFlushWriter) WriteHeader(statusCode int)  { n.status = statusCode }

func TestHandleSSE_SSENotSupported(t *testing.T) {
	f := newFixture(t, nil)

	w := &nonFlushWriter{}
	f.srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	if w.status != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.status, http.StatusInternalServerError)
	}
	if f.hub.Subscribers() != 0 {
		t.Error("handler subscribed despite missing flusher")
	}
}

func TestServer_ShutdownClosesStreams(t *testing.T) {
	f := newFixture(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	f.srv.port = port
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const clients = 3
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url := "http://127.0.0.1:" + strconv.Itoa(port) + "/api/events?token=" + f.token
			resp, err := http.Get(url)
			if err != nil {
				return
			}
			defer func() { _ = resp.Body.Close() }()
			_, _ = io.Copy(io.Discard, resp.Body)
		}()
	}

	waitForSubscribers(t, f.hub, clients)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connections did not close after server shutdown")
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	srv := NewServer(Config{Port: ln.Addr().(*net.TCPAddr).Port, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	srv := NewServer(Config{Port: -1, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with invalid port should return error")
	}
}

// parseSSEEvents extracts status change events from an SSE body.
func parseSSEEvents(body string) []inventory.StatusChangeEvent {
	var events []inventory.StatusChangeEvent
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev inventory.StatusChangeEvent
		if err := json.Unmarshal([]byte(data), &ev); err == nil {
			events = append(events, ev)
		}
	}
	return events
}
