package apu

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johncheung512/xenia/xenia/cpu"
	"github.com/Johncheung512/xenia/xenia/guest"
)

type fakeDriver struct {
	index int
	ready func()

	mu        sync.Mutex
	frames    []uint32
	destroyed bool
}

func (d *fakeDriver) SubmitFrame(samplesPtr uint32) {
	d.mu.Lock()
	d.frames = append(d.frames, samplesPtr)
	d.mu.Unlock()
}

func (d *fakeDriver) submitted() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.frames...)
}

type fakeFactory struct {
	mu       sync.Mutex
	drivers  []*fakeDriver
	failWith error
}

func (f *fakeFactory) CreateDriver(index int, ready func()) (Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	d := &fakeDriver{index: index, ready: ready}
	f.drivers = append(f.drivers, d)
	return d, nil
}

func (f *fakeFactory) DestroyDriver(d Driver) {
	fd := d.(*fakeDriver)
	fd.mu.Lock()
	fd.destroyed = true
	fd.mu.Unlock()
}

func (f *fakeFactory) driver(i int) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drivers[i]
}

func newTestSystem(t *testing.T) (*AudioSystem, *fakeFactory, *cpu.FuncTable, *guest.Heap) {
	t.Helper()
	heap := guest.NewHeap(0x1000, 1<<16)
	table := cpu.NewFuncTable()
	factory := &fakeFactory{}
	return New(table, heap, factory), factory, table, heap
}

// requirePartition checks that active slots and the free list split the
// index range exactly, with no overlap.
func requirePartition(t *testing.T, s *AudioSystem) {
	t.Helper()
	s.mu.Lock()
	free := append([]int(nil), s.unused...)
	s.mu.Unlock()

	seen := make(map[int]bool)
	for _, i := range free {
		require.False(t, seen[i], "free list holds duplicate index %d", i)
		seen[i] = true
	}
	for _, st := range s.Snapshot() {
		if st.Active {
			require.False(t, seen[st.Index], "slot %d both active and free", st.Index)
			seen[st.Index] = true
		}
	}
	require.Len(t, seen, MaxClients, "active slots and free list must cover every index")
}

func TestRegisterClient_FillsAllSlots(t *testing.T) {
	s, _, _, _ := newTestSystem(t)

	indices := make(map[int]bool)
	for i := 0; i < MaxClients; i++ {
		index, err := s.RegisterClient(0x1000, 0)
		require.NoError(t, err)
		indices[index] = true
	}
	assert.Len(t, indices, MaxClients, "each registration should get a distinct slot")

	_, err := s.RegisterClient(0x1000, 0)
	assert.ErrorIs(t, err, ErrResourceExhausted)
	requirePartition(t, s)
}

func TestRegisterClient_PreArmsSemaphore(t *testing.T) {
	s, _, _, _ := newTestSystem(t)

	index, err := s.RegisterClient(0xABC, 0)
	require.NoError(t, err)

	assert.Equal(t, MaxQueuedFrames, s.ws.count(index),
		"a fresh slot should be pre-armed to the maximum queued frames")
}

func TestRegisterClient_WrapsCallbackArg(t *testing.T) {
	s, _, _, heap := newTestSystem(t)

	index, err := s.RegisterClient(0xABC, 42)
	require.NoError(t, err)

	ptr := s.clients[index].wrappedArgPtr
	require.NotZero(t, ptr, "registration should allocate a guest cell for the argument")
	assert.Equal(t, uint32(42), guest.LoadUint32(heap, ptr))
}

func TestRegisterClient_DriverFailureLeavesNoPartialState(t *testing.T) {
	s, factory, _, _ := newTestSystem(t)
	driverErr := errors.New("no output device")
	factory.failWith = driverErr

	_, err := s.RegisterClient(0x1000, 0)

	assert.ErrorIs(t, err, driverErr, "factory errors should be propagated verbatim")
	requirePartition(t, s)
	for i := 0; i < MaxClients; i++ {
		assert.Equal(t, 0, s.ws.count(i), "failed registration must not leave pre-armed events")
	}

	factory.failWith = nil
	index, err := s.RegisterClient(0x1000, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, index, "the failed index should still be first on the free list")
}

func TestSubmitFrame_ForwardsToDriver(t *testing.T) {
	s, factory, _, _ := newTestSystem(t)

	index, err := s.RegisterClient(0, 0)
	require.NoError(t, err)

	s.SubmitFrame(index, 0x2000)
	s.SubmitFrame(index, 0x3000)

	assert.Equal(t, []uint32{0x2000, 0x3000}, factory.driver(0).submitted())
}

func TestSubmitFrame_PanicsOnInactiveSlot(t *testing.T) {
	s, _, _, _ := newTestSystem(t)

	assert.Panics(t, func() { s.SubmitFrame(0, 0x2000) })
	assert.Panics(t, func() { s.SubmitFrame(-1, 0x2000) })
	assert.Panics(t, func() { s.SubmitFrame(MaxClients, 0x2000) })
}

func TestUnregisterClient_ResetsSlot(t *testing.T) {
	s, factory, _, _ := newTestSystem(t)

	index, err := s.RegisterClient(0xABC, 7)
	require.NoError(t, err)
	driver := factory.driver(0)
	driver.ready()

	s.UnregisterClient(index)

	assert.True(t, driver.destroyed)
	assert.Equal(t, 0, s.ws.count(index), "pending events must be drained on unregister")
	requirePartition(t, s)

	st := s.Snapshot()[index]
	assert.False(t, st.Active)
	assert.Zero(t, st.Callback)

	assert.Panics(t, func() { s.UnregisterClient(index) }, "double unregister is a contract violation")
}

func TestSlotPartition_HeldAcrossChurn(t *testing.T) {
	s, _, _, _ := newTestSystem(t)

	var live []int
	for round := 0; round < 4; round++ {
		for i := 0; i < 3; i++ {
			index, err := s.RegisterClient(0x1000, 0)
			require.NoError(t, err)
			live = append(live, index)
			requirePartition(t, s)
		}
		for _, index := range live[:2] {
			s.UnregisterClient(index)
			requirePartition(t, s)
		}
		live = live[2:]
	}
}

func TestPumpOnce_ServicesReadySlotsAscending(t *testing.T) {
	s, _, table, _ := newTestSystem(t)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 7; i++ {
		slot := i
		entry := uint32(0x1000 + i)
		table.Register(entry, func(_ *cpu.ThreadState, _ []uint64) uint64 {
			mu.Lock()
			order = append(order, slot)
			mu.Unlock()
			return 0
		})
		index, err := s.RegisterClient(entry, 0)
		require.NoError(t, err)
		require.Equal(t, slot, index)
	}

	// Clear the registration pre-arms, then make exactly {2, 5, 6} ready.
	for i := 0; i < MaxClients; i++ {
		s.ws.drain(i)
	}
	s.ws.signal(2)
	s.ws.signal(5)
	s.ws.signal(6)

	pumped := s.pumpOnce()

	assert.Equal(t, 3, pumped)
	assert.Equal(t, []int{2, 5, 6}, order, "one drain pass should service ready slots in ascending order")
	for i := 0; i < MaxClients; i++ {
		assert.Equal(t, 0, s.ws.count(i), "no consumed event should remain signaled")
	}
}

func TestPumpOnce_ShutdownWakeCountsNoWork(t *testing.T) {
	s, _, _, _ := newTestSystem(t)

	s.ws.signalShutdown()

	assert.Equal(t, 0, s.pumpOnce())
}

func TestDispatch_PreArmedCallbackRunsImmediately(t *testing.T) {
	s, _, table, heap := newTestSystem(t)

	invoked := make(chan uint64, MaxQueuedFrames)
	table.Register(0xABC, func(_ *cpu.ThreadState, args []uint64) uint64 {
		select {
		case invoked <- args[0]:
		default:
		}
		return 0
	})

	s.Setup()
	defer s.Shutdown()

	_, err := s.RegisterClient(0xABC, 42)
	require.NoError(t, err)

	// No driver signal has happened; the pre-armed semaphore alone must
	// drive the first dispatch.
	select {
	case argPtr := <-invoked:
		assert.Equal(t, uint32(42), guest.LoadUint32(heap, uint32(argPtr)),
			"callback should receive the wrapped-argument cell, holding the raw value")
	case <-time.After(2 * time.Second):
		t.Fatal("pre-armed client was never dispatched")
	}
}

func TestDispatch_CallbackMayReenterRegistry(t *testing.T) {
	s, _, table, _ := newTestSystem(t)

	var (
		mu   sync.Mutex
		slot int
	)
	var once sync.Once
	done := make(chan struct{})

	table.Register(0xDEF, func(_ *cpu.ThreadState, _ []uint64) uint64 {
		once.Do(func() {
			mu.Lock()
			own := slot
			mu.Unlock()

			s.UnregisterClient(own)
			if _, err := s.RegisterClient(0, 0); err != nil {
				t.Errorf("re-registration inside callback failed: %v", err)
			}
			close(done)
		})
		return 0
	})

	s.Setup()
	defer s.Shutdown()

	mu.Lock()
	index, err := s.RegisterClient(0xDEF, 0)
	require.NoError(t, err)
	slot = index
	mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reentrant callback deadlocked")
	}
	requirePartition(t, s)
}

func TestShutdown_JoinsWorkerAndStopsDispatch(t *testing.T) {
	s, _, table, _ := newTestSystem(t)

	var calls atomic.Int64
	table.Register(0x500, func(_ *cpu.ThreadState, _ []uint64) uint64 {
		calls.Add(1)
		return 0
	})

	s.Setup()

	finished := make(chan struct{})
	go func() {
		s.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not join the worker")
	}

	// A registration after shutdown pre-arms its slot, but nothing may
	// service it.
	_, err := s.RegisterClient(0x500, 0)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load(), "no callback may run after Shutdown returns")
}

func TestIdleBackoff_ShutdownOnlyWakePumpsNothing(t *testing.T) {
	s, _, _, _ := newTestSystem(t)
	s.backoff = 20 * time.Millisecond

	s.Setup()

	// Wake the worker via the shutdown signal while leaving it running:
	// every cycle pumps zero work and falls into the idle sleep instead of
	// spinning or exiting.
	s.ws.signalShutdown()
	time.Sleep(100 * time.Millisecond)

	select {
	case <-s.done:
		t.Fatal("worker exited while still marked running")
	default:
	}
	for _, st := range s.Snapshot() {
		assert.Zero(t, st.Pumped)
	}

	s.Shutdown()
}
