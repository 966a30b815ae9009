// Package video answers the guest's display-information queries with the
// fixed mode a retail console reports. Everything here is a computed
// constant; the GPU proper lives elsewhere.
package video

import "github.com/Johncheung512/xenia/xenia/guest"

// Mode describes the current display mode.
type Mode struct {
	DisplayWidth  uint32
	DisplayHeight uint32
	Interlaced    bool
	Widescreen    bool
	HiDef         bool
	RefreshRate   float32
	VideoStandard uint32 // 1 = NTSC
}

// QueryVideoMode reports the display mode: 720p widescreen NTSC at 60 Hz.
func QueryVideoMode() Mode {
	return Mode{
		DisplayWidth:  1280,
		DisplayHeight: 720,
		Interlaced:    false,
		Widescreen:    true,
		HiDef:         true,
		RefreshRate:   60.0,
		VideoStandard: 1,
	}
}

// QueryVideoFlags derives the kernel's video flag word from the current
// mode: bit 0 widescreen, bit 1 width >= 1024, bit 2 width >= 1920.
func QueryVideoFlags() uint32 {
	mode := QueryVideoMode()

	var flags uint32
	if mode.Widescreen {
		flags |= 1
	}
	if mode.DisplayWidth >= 1024 {
		flags |= 2
	}
	if mode.DisplayWidth >= 1920 {
		flags |= 4
	}
	return flags
}

// CurrentDisplayGamma reports the display gamma type and value.
func CurrentDisplayGamma() (uint32, float32) {
	return 2, 2.22222233
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// VideoModeSize is the size of the guest video mode structure.
const VideoModeSize = 0x24

// StoreVideoMode writes mode as the guest structure at ptr.
func StoreVideoMode(m guest.Memory, ptr uint32, mode Mode) {
	guest.Zero(m, ptr, VideoModeSize)
	guest.StoreUint32(m, ptr+0x00, mode.DisplayWidth)
	guest.StoreUint32(m, ptr+0x04, mode.DisplayHeight)
	guest.StoreUint32(m, ptr+0x08, boolWord(mode.Interlaced))
	guest.StoreUint32(m, ptr+0x0C, boolWord(mode.Widescreen))
	guest.StoreUint32(m, ptr+0x10, boolWord(mode.HiDef))
	guest.StoreFloat32(m, ptr+0x14, mode.RefreshRate)
	guest.StoreUint32(m, ptr+0x18, mode.VideoStandard)
	guest.StoreUint32(m, ptr+0x1C, 0x4A)
	guest.StoreUint32(m, ptr+0x20, 0x01)
}

// DisplayInfoSize is the size of the guest display information structure.
const DisplayInfoSize = 88

// StoreDisplayInfo writes the display information block derived from the
// current video mode at ptr.
func StoreDisplayInfo(m guest.Memory, ptr uint32) {
	mode := QueryVideoMode()

	guest.Zero(m, ptr, DisplayInfoSize)
	guest.StoreUint16(m, ptr+0x00, uint16(mode.DisplayWidth))
	guest.StoreUint16(m, ptr+0x02, uint16(mode.DisplayHeight))
	guest.StoreUint32(m, ptr+0x10, mode.DisplayWidth) // backbuffer
	guest.StoreUint32(m, ptr+0x14, mode.DisplayHeight)
	guest.StoreUint32(m, ptr+0x18, mode.DisplayWidth)
	guest.StoreUint32(m, ptr+0x1C, mode.DisplayHeight)
	guest.StoreUint32(m, ptr+0x20, 1)
	guest.StoreUint32(m, ptr+0x30, 1)
	guest.StoreUint16(m, ptr+0x40, 320) // quarter-res view
	guest.StoreUint16(m, ptr+0x42, 180)
	guest.StoreUint16(m, ptr+0x44, 320)
	guest.StoreUint16(m, ptr+0x46, 180)
	guest.StoreUint16(m, ptr+0x48, uint16(mode.DisplayWidth))
	guest.StoreUint16(m, ptr+0x4A, uint16(mode.DisplayHeight))
	guest.StoreFloat32(m, ptr+0x4C, mode.RefreshRate)
	guest.StoreUint16(m, ptr+0x56, uint16(mode.DisplayWidth))
}
