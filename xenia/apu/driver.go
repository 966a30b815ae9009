package apu

// Driver is one host playback stream, exclusively owned by a slot while
// the slot is active.
type Driver interface {
	// SubmitFrame hands the driver the guest address of one frame of
	// samples (FrameBytes bytes). It is called with the registry lock held
	// and must never block on playback.
	SubmitFrame(samplesPtr uint32)
}

// DriverFactory builds and tears down drivers as clients come and go.
type DriverFactory interface {
	// CreateDriver opens a playback stream for the given slot. The driver
	// must call ready once per "ready for more data" event and never leave
	// more than MaxQueuedFrames events outstanding; excess signals are
	// dropped, not queued.
	CreateDriver(index int, ready func()) (Driver, error)

	// DestroyDriver releases a driver previously returned by CreateDriver.
	DestroyDriver(d Driver)
}
