// Package headless provides a device-less audio driver for automated runs
// and tests: submitted frames are pulled out of guest memory and discarded
// at a configurable cadence, without touching any host playback API.
package headless

import (
	"sync"
	"time"

	"github.com/Johncheung512/xenia/xenia/apu"
	"github.com/Johncheung512/xenia/xenia/guest"
)

// Factory builds headless drivers.
//
// With a zero Interval each submitted frame is consumed, and readiness
// re-signaled, immediately. With a non-zero Interval consumption is paced
// by a ticker, approximating a real playback device's cadence.
type Factory struct {
	Memory   guest.Memory
	Interval time.Duration
}

func (f *Factory) CreateDriver(index int, ready func()) (apu.Driver, error) {
	d := &Driver{
		memory:   f.Memory,
		interval: f.Interval,
		ready:    ready,
		stop:     make(chan struct{}),
	}
	if d.interval > 0 {
		d.queue = make(chan uint32, apu.MaxQueuedFrames)
		go d.consumeLoop()
	}
	return d, nil
}

func (f *Factory) DestroyDriver(d apu.Driver) {
	d.(*Driver).close()
}

var _ apu.DriverFactory = (*Factory)(nil)

// Driver consumes frames without a playback device.
type Driver struct {
	memory   guest.Memory
	interval time.Duration
	ready    func()
	queue    chan uint32
	stop     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	consumed  int
	lastFrame []byte
}

func (d *Driver) SubmitFrame(samplesPtr uint32) {
	if d.interval > 0 {
		select {
		case d.queue <- samplesPtr:
		default:
			// The guest out-ran the cadence; drop the frame like real
			// hardware would.
		}
		return
	}
	d.consume(samplesPtr)
}

func (d *Driver) consume(samplesPtr uint32) {
	frame := make([]byte, apu.FrameBytes)
	copy(frame, d.memory.Translate(samplesPtr))

	d.mu.Lock()
	d.consumed++
	d.lastFrame = frame
	d.mu.Unlock()

	d.ready()
}

func (d *Driver) consumeLoop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			select {
			case ptr := <-d.queue:
				d.consume(ptr)
			default:
			}
		}
	}
}

func (d *Driver) close() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Consumed reports how many frames the driver has pulled from guest
// memory.
func (d *Driver) Consumed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consumed
}

// LastFrame returns a copy of the most recently consumed frame, or nil.
func (d *Driver) LastFrame() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastFrame == nil {
		return nil
	}
	out := make([]byte, len(d.lastFrame))
	copy(out, d.lastFrame)
	return out
}
