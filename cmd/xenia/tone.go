package main

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/Johncheung512/xenia/xenia/apu"
	"github.com/Johncheung512/xenia/xenia/cpu"
	"github.com/Johncheung512/xenia/xenia/guest"
)

const toneAmplitude = 6000

// toneClient is a synthetic guest audio client: its callback, dispatched
// by the scheduler's worker, fills a frame with a sine tone and submits it
// right back through SubmitFrame. That round trip exercises the same
// reentrancy path real guest code uses.
type toneClient struct {
	system *apu.AudioSystem
	heap   *guest.Heap

	mu       sync.Mutex
	slot     int
	stopped  bool
	framePtr uint32
	freq     float64
	phase    float64
}

// startToneClient registers client i with its own tone frequency and a
// dedicated frame buffer in guest memory.
func startToneClient(system *apu.AudioSystem, table *cpu.FuncTable, heap *guest.Heap, i int) (*toneClient, error) {
	tc := &toneClient{
		system: system,
		heap:   heap,
		freq:   220 * math.Pow(1.5, float64(i)),
	}
	tc.framePtr = heap.AllocateSmallBlock(apu.FrameBytes)

	entry := uint32(clientEntryBase + i*clientEntryStep)
	table.Register(entry, tc.callback)

	// Hold the lock across registration so a callback dispatched before
	// RegisterClient returns blocks until the slot index is published.
	tc.mu.Lock()
	defer tc.mu.Unlock()

	slot, err := system.RegisterClient(entry, uint32(i))
	if err != nil {
		return nil, err
	}
	tc.slot = slot
	return tc, nil
}

// callback runs on the scheduler's worker goroutine with the registry
// lock released.
func (tc *toneClient) callback(_ *cpu.ThreadState, args []uint64) uint64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.stopped {
		return 0
	}

	buf := tc.heap.Translate(tc.framePtr)[:apu.FrameBytes]
	step := 2 * math.Pi * tc.freq / apu.FrameSampleRate
	for s := 0; s < apu.FrameSamples; s++ {
		v := uint16(int16(toneAmplitude * math.Sin(tc.phase)))
		tc.phase += step
		for ch := 0; ch < apu.FrameChannels; ch++ {
			binary.BigEndian.PutUint16(buf[(s*apu.FrameChannels+ch)*2:], v)
		}
	}

	tc.system.SubmitFrame(tc.slot, tc.framePtr)
	return 0
}

// stopAndUnregister makes the callback a no-op before tearing down the
// slot, so an in-flight dispatch can't submit to a freed slot.
func (tc *toneClient) stopAndUnregister() {
	tc.mu.Lock()
	tc.stopped = true
	slot := tc.slot
	tc.mu.Unlock()

	tc.system.UnregisterClient(slot)
}
