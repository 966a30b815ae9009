//go:build !cgo || noaudio

package hostaudio

import (
	"errors"

	"github.com/Johncheung512/xenia/xenia/apu"
	"github.com/Johncheung512/xenia/xenia/guest"
)

// ErrNotSupported is returned when the binary was built without cgo audio
// support.
var ErrNotSupported = errors.New("hostaudio: built without cgo audio support")

type Factory struct {
	Memory guest.Memory
}

func (f *Factory) CreateDriver(index int, ready func()) (apu.Driver, error) {
	return nil, ErrNotSupported
}

func (f *Factory) DestroyDriver(d apu.Driver) {}

var _ apu.DriverFactory = (*Factory)(nil)
