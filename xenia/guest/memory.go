package guest

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// Memory exposes the guest address-space services the audio subsystem
// needs: a small-block system heap and virtual-to-host translation.
// Guest code is big-endian; all multi-byte access goes through the
// Store/Load helpers below so byte order is swapped in exactly one place.
type Memory interface {
	// AllocateSmallBlock reserves size bytes on the guest system heap and
	// returns the guest address of the block, or 0 if the heap is full.
	AllocateSmallBlock(size uint32) uint32

	// Translate returns the host view of guest memory starting at addr,
	// extending to the end of the mapped region.
	Translate(addr uint32) []byte
}

// StoreUint16 writes v at addr in guest byte order.
func StoreUint16(m Memory, addr uint32, v uint16) {
	binary.BigEndian.PutUint16(m.Translate(addr), v)
}

// StoreUint32 writes v at addr in guest byte order.
func StoreUint32(m Memory, addr uint32, v uint32) {
	binary.BigEndian.PutUint32(m.Translate(addr), v)
}

// StoreFloat32 writes v at addr in guest byte order.
func StoreFloat32(m Memory, addr uint32, v float32) {
	StoreUint32(m, addr, math.Float32bits(v))
}

// LoadUint16 reads a guest byte order value from addr.
func LoadUint16(m Memory, addr uint32) uint16 {
	return binary.BigEndian.Uint16(m.Translate(addr))
}

// LoadUint32 reads a guest byte order value from addr.
func LoadUint32(m Memory, addr uint32) uint32 {
	return binary.BigEndian.Uint32(m.Translate(addr))
}

// Zero clears size bytes starting at addr.
func Zero(m Memory, addr, size uint32) {
	buf := m.Translate(addr)[:size]
	for i := range buf {
		buf[i] = 0
	}
}

// Heap is a flat span of guest memory with a bump allocator, enough to
// back the subsystem when it runs outside a full emulator. Blocks are
// never freed individually; lifetime is tied to the heap itself.
type Heap struct {
	mu   sync.Mutex
	base uint32
	data []byte
	next uint32
}

// NewHeap maps size bytes of guest memory starting at base. Base must be
// non-zero so that allocated addresses are never mistaken for null.
func NewHeap(base uint32, size int) *Heap {
	if base == 0 {
		panic("guest: heap base must be non-zero")
	}
	return &Heap{base: base, data: make([]byte, size)}
}

// AllocateSmallBlock returns the guest address of a fresh 8-byte aligned
// block, or 0 when the heap is exhausted.
func (h *Heap) AllocateSmallBlock(size uint32) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	offset := (h.next + 7) &^ 7
	if uint64(offset)+uint64(size) > uint64(len(h.data)) {
		return 0
	}
	h.next = offset + size
	return h.base + offset
}

// Translate returns the host bytes backing addr through the end of the
// heap. Translating an unmapped address is a caller bug.
func (h *Heap) Translate(addr uint32) []byte {
	if addr < h.base || uint64(addr) >= uint64(h.base)+uint64(len(h.data)) {
		panic(fmt.Sprintf("guest: translate of unmapped address %#x", addr))
	}
	return h.data[addr-h.base:]
}

var _ Memory = (*Heap)(nil)
