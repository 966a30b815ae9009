package apu

import "time"

const (
	// MaxClients is the capacity of the client slot table.
	MaxClients = 8

	// MaxQueuedFrames caps how many "ready for more data" events a slot
	// can hold. Drivers must drop signals beyond this rather than queue
	// them.
	MaxQueuedFrames = 64
)

// Frame format: 16-bit signed stereo PCM at 48 kHz, stored big-endian in
// guest memory.
const (
	FrameSampleRate = 48000
	FrameChannels   = 2
	// FrameSamples is the per-channel sample count of one submitted frame.
	FrameSamples = 256
	FrameBytes   = FrameSamples * FrameChannels * 2
)

const (
	// idleBackoff is how long the worker sleeps after a dispatch cycle
	// that pumped no callbacks, so spurious wakeups don't busy-spin.
	idleBackoff = 500 * time.Millisecond

	// callbackArgSize is the size of the guest cell holding a wrapped
	// callback argument.
	callbackArgSize = 4

	// workerStackSize is the guest stack reserved for the worker's thread
	// state.
	workerStackSize = 128 * 1024
)
