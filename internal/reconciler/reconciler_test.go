package reconciler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jpalmerr/devicewatch/internal/inventory"
	"github.com/jpalmerr/devicewatch/internal/probe"
	"github.com/jpalmerr/devicewatch/internal/probe/mocks"
	"github.com/jpalmerr/devicewatch/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// spyStore wraps a MemoryStore, counting writes and injecting failures.
type spyStore struct {
	*store.MemoryStore

	listErr   error
	updateErr map[int64]error

	mu      sync.Mutex
	updates []int64
}

func newSpyStore(devices ...inventory.Device) *spyStore {
	return &spyStore{MemoryStore: store.NewMemoryStore(devices...), updateErr: map[int64]error{}}
}

func (s *spyStore) ListDevices(ctx context.Context) ([]inventory.Device, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.MemoryStore.ListDevices(ctx)
}

func (s *spyStore) UpdateStatus(ctx context.Context, id int64, status inventory.Status) error {
	s.mu.Lock()
	s.updates = append(s.updates, id)
	err := s.updateErr[id]
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.UpdateStatus(ctx, id, status)
}

func (s *spyStore) writes() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.updates...)
}

func (s *spyStore) status(t *testing.T, id int64) inventory.Status {
	t.Helper()
	d, err := s.GetDevice(context.Background(), id)
	require.NoError(t, err)
	return d.Status
}

type eventRecorder struct {
	mu     sync.Mutex
	events []inventory.StatusChangeEvent
}

func (r *eventRecorder) Publish(ev inventory.StatusChangeEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []inventory.StatusChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inventory.StatusChangeEvent(nil), r.events...)
}

// reachability is a Prober backed by a fixed address table. Addresses not in
// the table fail to probe.
type reachability map[string]bool

func (m reachability) Probe(_ context.Context, address string) (probe.Result, error) {
	up, ok := m[address]
	if !ok {
		return probe.Result{}, errors.New("no route")
	}
	return probe.Result{Reachable: up}, nil
}

func TestRunSweep_Scenario1_DownDeviceComesUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), "10.0.0.5").Return(probe.Result{Reachable: true}, nil)

	st := newSpyStore(inventory.Device{ID: 1, Address: "10.0.0.5", Status: inventory.StatusDown})
	events := &eventRecorder{}
	r := New(st, prober, events, Config{Logger: testLogger()})

	report, err := r.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, inventory.StatusUp, st.status(t, 1))
	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].DeviceID)
	assert.Equal(t, inventory.StatusUp, got[0].Status)
	require.NotNil(t, got[0].Previous)
	assert.Equal(t, inventory.StatusDown, *got[0].Previous)

	assert.Equal(t, 1, report.Devices)
	assert.Equal(t, 1, report.Changed)
	assert.NotEmpty(t, report.ID)
}

func TestRunSweep_Scenario2_UnchangedDeviceIsQuiet(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), "10.0.0.6").Return(probe.Result{Reachable: true}, nil)

	st := newSpyStore(inventory.Device{ID: 2, Address: "10.0.0.6", Status: inventory.StatusUp})
	events := &eventRecorder{}
	r := New(st, prober, events, Config{Logger: testLogger()})

	report, err := r.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Empty(t, st.writes())
	assert.Empty(t, events.all())
	assert.Equal(t, 1, report.Probed)
	assert.Zero(t, report.Changed)
}

func TestRunSweep_Scenario3_ProbeFailureLeavesDeviceUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), "10.0.0.7").Return(probe.Result{}, context.DeadlineExceeded)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	st := newSpyStore(inventory.Device{ID: 3, Address: "10.0.0.7", Status: inventory.StatusUp})
	events := &eventRecorder{}
	r := New(st, prober, events, Config{Logger: logger})

	report, err := r.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Empty(t, st.writes())
	assert.Empty(t, events.all())
	assert.Equal(t, inventory.StatusUp, st.status(t, 3))
	assert.Equal(t, 1, report.ProbeFailures)
	assert.Equal(t, 1, strings.Count(logs.String(), `"msg":"probe failed"`))
}

func TestRunSweep_Scenario4_OneFailureDoesNotAbortSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	gomock.InOrder(
		prober.EXPECT().Probe(gomock.Any(), "10.0.0.1").Return(probe.Result{Reachable: true}, nil),
		prober.EXPECT().Probe(gomock.Any(), "10.0.0.2").Return(probe.Result{}, errors.New("socket: operation not permitted")),
		prober.EXPECT().Probe(gomock.Any(), "10.0.0.3").Return(probe.Result{Reachable: false}, nil),
	)

	st := newSpyStore(
		inventory.Device{ID: 1, Address: "10.0.0.1", Status: inventory.StatusDown},
		inventory.Device{ID: 2, Address: "10.0.0.2", Status: inventory.StatusDown},
		inventory.Device{ID: 3, Address: "10.0.0.3", Status: inventory.StatusUp},
	)
	events := &eventRecorder{}
	r := New(st, prober, events, Config{Logger: testLogger()})

	report, err := r.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Devices)
	assert.Equal(t, 2, report.Probed)
	assert.Equal(t, 1, report.ProbeFailures)
	assert.Equal(t, []int64{1, 3}, st.writes())
	assert.Equal(t, inventory.StatusDown, st.status(t, 2))
	assert.Len(t, events.all(), 2)
}

func TestRunSweep_Idempotent(t *testing.T) {
	net := reachability{"10.0.0.1": true, "10.0.0.2": false}
	st := newSpyStore(
		inventory.Device{ID: 1, Address: "10.0.0.1", Status: inventory.StatusDown},
		inventory.Device{ID: 2, Address: "10.0.0.2", Status: inventory.StatusUp},
	)
	events := &eventRecorder{}
	r := New(st, net, events, Config{Logger: testLogger()})

	_, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	require.Len(t, events.all(), 2)
	writesAfterFirst := len(st.writes())

	second, err := r.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Len(t, st.writes(), writesAfterFirst, "second sweep wrote")
	assert.Len(t, events.all(), 2, "second sweep published")
	assert.Zero(t, second.Changed)
}

func TestRunSweep_EventIffStatusDiffers(t *testing.T) {
	net := reachability{}
	var devices []inventory.Device
	for i := int64(1); i <= 8; i++ {
		addr := "10.0.1." + string(rune('0'+i))
		stored := inventory.Status(i % 2)
		observed := i%4 < 2
		net[addr] = observed
		devices = append(devices, inventory.Device{ID: i, Address: addr, Status: stored})
	}

	st := newSpyStore(devices...)
	events := &eventRecorder{}
	r := New(st, net, events, Config{Logger: testLogger()})

	_, err := r.RunSweep(context.Background())
	require.NoError(t, err)

	byID := map[int64]inventory.StatusChangeEvent{}
	for _, ev := range events.all() {
		byID[ev.DeviceID] = ev
	}

	for _, d := range devices {
		observed := inventory.StatusFromReachable(net[d.Address])
		ev, emitted := byID[d.ID]
		if observed != d.Status {
			require.True(t, emitted, "device %d changed but no event", d.ID)
			assert.Equal(t, observed, ev.Status, "device %d event status", d.ID)
		} else {
			assert.False(t, emitted, "device %d unchanged but got event", d.ID)
		}
		assert.Equal(t, observed, st.status(t, d.ID))
	}
}

func TestRunSweep_StoreUnavailableAbortsWithoutProbing(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl) // no expectations: any probe fails the test

	st := newSpyStore(inventory.Device{ID: 1, Address: "10.0.0.1"})
	st.listErr = errors.New("database is locked")
	events := &eventRecorder{}
	r := New(st, prober, events, Config{Logger: testLogger()})

	_, err := r.RunSweep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Empty(t, events.all())

	// the next sweep works once the store recovers
	st.listErr = nil
	prober.EXPECT().Probe(gomock.Any(), "10.0.0.1").Return(probe.Result{Reachable: false}, nil)
	_, err = r.RunSweep(context.Background())
	assert.NoError(t, err)
}

func TestRunSweep_WriteFailureSuppressesEvent(t *testing.T) {
	net := reachability{"10.0.0.1": true, "10.0.0.2": true}
	st := newSpyStore(
		inventory.Device{ID: 1, Address: "10.0.0.1", Status: inventory.StatusDown},
		inventory.Device{ID: 2, Address: "10.0.0.2", Status: inventory.StatusDown},
	)
	st.updateErr[1] = errors.New("disk I/O error")
	events := &eventRecorder{}
	r := New(st, net, events, Config{Logger: testLogger()})

	report, err := r.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.WriteFailures)
	assert.Equal(t, 1, report.Changed)
	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].DeviceID)
	assert.Equal(t, inventory.StatusDown, st.status(t, 1))
}

func TestRunSweep_DeletedDeviceProducesNoEvent(t *testing.T) {
	st := newSpyStore(inventory.Device{ID: 1, Address: "10.0.0.1", Status: inventory.StatusDown})

	// the device disappears between the snapshot and the write
	prober := probe.ProberFunc(func(context.Context, string) (probe.Result, error) {
		st.DeleteDevice(1)
		return probe.Result{Reachable: true}, nil
	})
	events := &eventRecorder{}
	r := New(st, prober, events, Config{Logger: testLogger()})

	report, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.WriteFailures)
	assert.Empty(t, events.all())
}

func TestRunSweep_SnapshotExcludesDevicesAddedMidSweep(t *testing.T) {
	st := newSpyStore(inventory.Device{ID: 1, Address: "10.0.0.1", Status: inventory.StatusDown})

	var probed []string
	prober := probe.ProberFunc(func(_ context.Context, address string) (probe.Result, error) {
		probed = append(probed, address)
		st.PutDevice(inventory.Device{ID: 2, Address: "10.0.0.2"})
		return probe.Result{Reachable: true}, nil
	})
	r := New(st, prober, nil, Config{Logger: testLogger()})

	report, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Devices)
	assert.Equal(t, []string{"10.0.0.1"}, probed)
}

func TestRunSweep_ConcurrentSweepIsRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	prober := probe.ProberFunc(func(context.Context, string) (probe.Result, error) {
		once.Do(func() { close(entered) })
		<-release
		return probe.Result{Reachable: true}, nil
	})

	st := newSpyStore(inventory.Device{ID: 1, Address: "10.0.0.1"})
	r := New(st, prober, nil, Config{Logger: testLogger()})

	done := make(chan error, 1)
	go func() {
		_, err := r.RunSweep(context.Background())
		done <- err
	}()

	<-entered
	_, err := r.RunSweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(release)
	require.NoError(t, <-done)

	// once the first sweep finished a new one is accepted
	_, err = r.RunSweep(context.Background())
	assert.NoError(t, err)
}

func TestRunSweep_ConcurrentMatchesSequential(t *testing.T) {
	net := reachability{}
	var devices []inventory.Device
	for i := int64(1); i <= 20; i++ {
		addr := "host-" + string(rune('a'+i))
		net[addr] = i%3 == 0
		devices = append(devices, inventory.Device{ID: i, Address: addr, Status: inventory.Status(i % 2)})
	}
	delete(net, devices[4].Address) // one failing probe

	run := func(concurrency int) (map[int64]inventory.Status, SweepReport) {
		st := newSpyStore(devices...)
		events := &eventRecorder{}
		r := New(st, net, events, Config{Logger: testLogger(), Concurrency: concurrency})
		report, err := r.RunSweep(context.Background())
		require.NoError(t, err)

		got := map[int64]inventory.Status{}
		for _, ev := range events.all() {
			got[ev.DeviceID] = ev.Status
		}
		report.ID, report.Duration = "", 0
		return got, report
	}

	seqEvents, seqReport := run(1)
	parEvents, parReport := run(6)

	assert.Equal(t, seqEvents, parEvents)
	assert.Equal(t, seqReport, parReport)
	assert.Equal(t, 1, parReport.ProbeFailures)
}

func TestRunSweep_SweepTimeoutSkipsRemainingDevices(t *testing.T) {
	prober := probe.ProberFunc(func(ctx context.Context, address string) (probe.Result, error) {
		if address == "slow" {
			<-ctx.Done()
			return probe.Result{}, ctx.Err()
		}
		return probe.Result{Reachable: true}, nil
	})

	st := newSpyStore(
		inventory.Device{ID: 1, Address: "fast", Status: inventory.StatusDown},
		inventory.Device{ID: 2, Address: "slow", Status: inventory.StatusDown},
		inventory.Device{ID: 3, Address: "fast", Status: inventory.StatusDown},
	)
	events := &eventRecorder{}
	r := New(st, prober, events, Config{Logger: testLogger(), SweepTimeout: 50 * time.Millisecond})

	report, err := r.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.ProbeFailures)
	assert.Len(t, events.all(), 1)
}

func TestRunSweep_ProbeIsBoundedByTimeout(t *testing.T) {
	var sawDeadline atomic.Bool
	prober := probe.ProberFunc(func(ctx context.Context, _ string) (probe.Result, error) {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		return probe.Result{Reachable: true}, nil
	})

	st := newSpyStore(inventory.Device{ID: 1, Address: "10.0.0.1"})
	r := New(st, prober, nil, Config{Logger: testLogger(), ProbeTimeout: 100 * time.Millisecond})

	_, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	assert.True(t, sawDeadline.Load(), "probe context had no deadline")
}

func TestCheckDevice(t *testing.T) {
	net := reachability{"10.0.0.1": true}
	st := newSpyStore(
		inventory.Device{ID: 1, Address: "10.0.0.1", Status: inventory.StatusDown},
		inventory.Device{ID: 2, Address: "10.0.0.99", Status: inventory.StatusUp},
	)
	events := &eventRecorder{}
	r := New(st, net, events, Config{Logger: testLogger()})

	d, err := r.CheckDevice(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusUp, d.Status)
	assert.Len(t, events.all(), 1)

	// unchanged on the second call
	_, err = r.CheckDevice(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, events.all(), 1)

	// probe failure is surfaced
	d, err = r.CheckDevice(context.Background(), 2)
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.Equal(t, inventory.StatusUp, d.Status)

	_, err = r.CheckDevice(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckDevice_DuringSweepDoesNotRepublish(t *testing.T) {
	net := reachability{"10.0.0.1": true, "10.0.0.2": true}
	st := newSpyStore(
		inventory.Device{ID: 2, Address: "10.0.0.2", Status: inventory.StatusUp},
		inventory.Device{ID: 1, Address: "10.0.0.1", Status: inventory.StatusDown},
	)
	events := &eventRecorder{}
	r := New(st, net, events, Config{Logger: testLogger()})

	// while the sweep probes device 2, an on-demand check brings device 1 up,
	// after the sweep's snapshot still recorded it as down
	r.prober = probe.ProberFunc(func(ctx context.Context, address string) (probe.Result, error) {
		if address == "10.0.0.2" {
			r.prober = net
			_, err := r.CheckDevice(ctx, 1)
			require.NoError(t, err)
		}
		return net.Probe(ctx, address)
	})

	_, err := r.RunSweep(context.Background())
	require.NoError(t, err)

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].DeviceID)
	assert.Equal(t, inventory.StatusUp, st.status(t, 1))
}

func TestKeyedMutex_SerialisesSameKey(t *testing.T) {
	k := keyedMutex{locks: map[int64]*refMutex{}}

	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock(7)
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Empty(t, k.locks, "locks not released")
}
