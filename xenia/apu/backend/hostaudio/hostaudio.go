//go:build cgo && !noaudio

// Package hostaudio plays client audio through the host's output devices
// using malgo (miniaudio). One playback device is opened per registered
// client; the malgo context is shared across them.
package hostaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/Johncheung512/xenia/xenia/apu"
	"github.com/Johncheung512/xenia/xenia/guest"
)

// Factory opens malgo playback devices for registered clients.
type Factory struct {
	Memory guest.Memory

	mu   sync.Mutex
	ctx  *malgo.AllocatedContext
	refs int
}

// acquireContext returns the shared malgo context, initializing it on
// first use.
func (f *Factory) acquireContext() (*malgo.AllocatedContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("hostaudio: init context: %w", err)
		}
		f.ctx = ctx
	}
	f.refs++
	return f.ctx, nil
}

func (f *Factory) releaseContext() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refs--
	if f.refs == 0 {
		_ = f.ctx.Uninit()
		f.ctx.Free()
		f.ctx = nil
	}
}

func (f *Factory) CreateDriver(index int, ready func()) (apu.Driver, error) {
	ctx, err := f.acquireContext()
	if err != nil {
		return nil, err
	}

	d := &Driver{
		memory: f.Memory,
		ready:  ready,
		queue:  make(chan []byte, apu.MaxQueuedFrames),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.SampleRate = apu.FrameSampleRate
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = apu.FrameChannels
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: malgo.DataProc(d.fill),
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		f.releaseContext()
		return nil, fmt.Errorf("hostaudio: open playback device for slot %d: %w", index, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		f.releaseContext()
		return nil, fmt.Errorf("hostaudio: start playback device for slot %d: %w", index, err)
	}
	d.device = device
	return d, nil
}

func (f *Factory) DestroyDriver(d apu.Driver) {
	drv := d.(*Driver)
	drv.device.Uninit()
	f.releaseContext()
}

var _ apu.DriverFactory = (*Factory)(nil)

// Driver streams queued frames into the malgo data callback, signaling
// readiness each time a queued frame is picked up for playback.
type Driver struct {
	memory guest.Memory
	device *malgo.Device
	ready  func()
	queue  chan []byte

	// current is the remainder of the frame being played. Touched only on
	// the device thread.
	current []byte
}

func (d *Driver) SubmitFrame(samplesPtr uint32) {
	// Guest samples are big-endian; the device wants host order.
	src := d.memory.Translate(samplesPtr)
	frame := make([]byte, apu.FrameBytes)
	for i := 0; i+1 < len(frame) && i+1 < len(src); i += 2 {
		frame[i] = src[i+1]
		frame[i+1] = src[i]
	}

	select {
	case d.queue <- frame:
	default:
		// The guest submitted more frames than the device has consumed.
		// Drop rather than block under the registry lock.
	}
}

// fill runs on the malgo device thread.
func (d *Driver) fill(out, _ []byte, frameCount uint32) {
	for len(out) > 0 {
		if len(d.current) == 0 {
			select {
			case d.current = <-d.queue:
				d.ready()
			default:
				// Underrun: pad with silence.
				for i := range out {
					out[i] = 0
				}
				return
			}
		}
		n := copy(out, d.current)
		d.current = d.current[n:]
		out = out[n:]
	}
}
