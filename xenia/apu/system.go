// Package apu multiplexes guest audio clients onto a fixed pool of host
// playback drivers and drives their data-consumed callbacks from a
// dedicated worker.
package apu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Johncheung512/xenia/xenia/cpu"
	"github.com/Johncheung512/xenia/xenia/guest"
)

// ErrResourceExhausted is returned by RegisterClient when every slot is in
// use. This is a hard limit; callers must not retry.
var ErrResourceExhausted = errors.New("apu: all client slots in use")

type runState int

const (
	stateRunning runState = iota + 1
	stateStopped
)

// client is one slot of the table. driver != nil exactly when the slot is
// active, which is exactly when its index is absent from the free list.
type client struct {
	driver        Driver
	callback      uint32
	callbackArg   uint32
	wrappedArgPtr uint32
	pumped        uint64
}

// AudioSystem is the client scheduler: it owns the slot table, the per-slot
// ready semaphores and the worker goroutine that invokes guest callbacks.
//
// Register/Submit/Unregister may be called from any number of goroutines.
// All slot state is mutated under one mutex, and that mutex is never held
// across a guest callback invocation, so a callback is free to call back
// into the system (including for its own slot) without deadlocking the
// worker.
type AudioSystem struct {
	processor cpu.Processor
	memory    guest.Memory
	factory   DriverFactory

	mu      sync.Mutex
	clients [MaxClients]client
	unused  []int
	state   runState

	ws          *waitSet
	threadState *cpu.ThreadState
	done        chan struct{}

	// backoff is idleBackoff unless a test shortens it.
	backoff time.Duration
}

// New creates an audio system using the given execution engine, guest
// memory services and driver factory. Call Setup to start the worker.
func New(processor cpu.Processor, memory guest.Memory, factory DriverFactory) *AudioSystem {
	s := &AudioSystem{
		processor: processor,
		memory:    memory,
		factory:   factory,
		ws:        newWaitSet(),
		backoff:   idleBackoff,
	}
	s.unused = make([]int, 0, MaxClients)
	for i := 0; i < MaxClients; i++ {
		s.unused = append(s.unused, i)
	}
	return s
}

// Setup starts the dispatch worker. The system accepts registrations as
// soon as Setup returns.
func (s *AudioSystem) Setup() {
	s.mu.Lock()
	s.state = stateRunning
	s.mu.Unlock()

	s.threadState = cpu.NewThreadState("Audio Worker", workerStackSize)
	s.done = make(chan struct{})
	go s.workerMain()
}

func (s *AudioSystem) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

func (s *AudioSystem) workerMain() {
	defer close(s.done)

	for s.running() {
		pumped := s.pumpOnce()

		if !s.running() {
			break
		}
		if pumped == 0 {
			time.Sleep(s.backoff)
		}
	}
}

// pumpOnce runs one dispatch cycle: block until some slot is ready (or
// shutdown is signaled), then service every currently-ready slot from the
// lowest ready index upward in a single drain pass. Returns the number of
// slots serviced.
func (s *AudioSystem) pumpOnce() int {
	index, ok := s.ws.wait()
	if !ok {
		// Shutdown wake; the caller observes the run state itself.
		return 0
	}

	pumped := 0
	for {
		s.mu.Lock()
		callback := s.clients[index].callback
		wrappedArg := s.clients[index].wrappedArgPtr
		if callback != 0 {
			s.clients[index].pumped++
		}
		s.mu.Unlock()

		// The lock is released here: the callback may re-enter
		// RegisterClient/SubmitFrame/UnregisterClient.
		if callback != 0 {
			args := []uint64{uint64(wrappedArg)}
			if _, err := s.processor.Execute(s.threadState, callback, args); err != nil {
				slog.Error("Audio client callback faulted",
					"slot", index, "callback", fmt.Sprintf("%#x", callback), "error", err)
			}
		}
		pumped++

		// Batch every slot that is already ready, ascending, before going
		// back to the blocking wait.
		index++
		if index >= MaxClients || !s.ws.tryAcquire(index) {
			break
		}
	}
	return pumped
}

// Shutdown stops the worker and waits for it to exit. A callback already
// in flight runs to completion first. Calling Shutdown twice is outside
// the contract.
func (s *AudioSystem) Shutdown() {
	s.mu.Lock()
	s.state = stateStopped
	s.mu.Unlock()

	s.ws.signalShutdown()
	<-s.done
}

// RegisterClient allocates a slot for a guest audio client. callback is
// the guest entry point invoked on each data-consumed event (0 for none);
// callbackArg is copied into a fresh guest cell whose address, not the raw
// value, is what the callback receives. Returns the slot index used by
// SubmitFrame and UnregisterClient.
func (s *AudioSystem) RegisterClient(callback, callbackArg uint32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.unused) == 0 {
		return 0, ErrResourceExhausted
	}
	index := s.unused[0]

	// Pre-arm the slot so the first dispatch cycle services it without a
	// real driver event; drivers don't signal until after their first
	// internal buffer fill.
	s.ws.release(index, MaxQueuedFrames)

	driver, err := s.factory.CreateDriver(index, func() { s.ws.signal(index) })
	if err != nil {
		// No partial state: the index was never popped, and the pre-armed
		// events are taken back.
		s.ws.drain(index)
		return 0, err
	}

	s.unused = s.unused[1:]

	ptr := s.memory.AllocateSmallBlock(callbackArgSize)
	guest.StoreUint32(s.memory, ptr, callbackArg)

	s.clients[index] = client{
		driver:        driver,
		callback:      callback,
		callbackArg:   callbackArg,
		wrappedArgPtr: ptr,
	}
	return index, nil
}

// SubmitFrame forwards one frame of samples to the slot's driver. The
// driver's own buffering and backpressure are opaque here; this call never
// blocks on playback.
func (s *AudioSystem) SubmitFrame(index int, samplesPtr uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mustBeActive(index, "SubmitFrame")
	s.clients[index].driver.SubmitFrame(samplesPtr)
}

// UnregisterClient destroys the slot's driver, clears the slot and returns
// the index to the free list. Pending ready events are drained so a later
// reuse of the index starts clean.
func (s *AudioSystem) UnregisterClient(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mustBeActive(index, "UnregisterClient")
	s.factory.DestroyDriver(s.clients[index].driver)
	s.clients[index] = client{}
	s.unused = append(s.unused, index)
	s.ws.drain(index)
}

// mustBeActive panics when index does not name an active slot. Operating
// on an inactive slot is a caller bug, not a recoverable error.
func (s *AudioSystem) mustBeActive(index int, op string) {
	if index < 0 || index >= MaxClients {
		panic(fmt.Sprintf("apu: %s: slot %d out of range", op, index))
	}
	if s.clients[index].driver == nil {
		panic(fmt.Sprintf("apu: %s: slot %d is not active", op, index))
	}
}

// SlotStatus is one row of a Snapshot.
type SlotStatus struct {
	Index    int
	Active   bool
	Callback uint32
	Pumped   uint64 // callbacks dispatched for this slot so far
	Pending  int    // ready events not yet consumed by a dispatch
}

// Snapshot returns the current state of every slot, for monitoring and
// tests.
func (s *AudioSystem) Snapshot() []SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SlotStatus, MaxClients)
	for i := range out {
		out[i] = SlotStatus{
			Index:    i,
			Active:   s.clients[i].driver != nil,
			Callback: s.clients[i].callback,
			Pumped:   s.clients[i].pumped,
			Pending:  s.ws.count(i),
		}
	}
	return out
}
