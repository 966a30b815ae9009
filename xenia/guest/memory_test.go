package guest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeap_AllocateSmallBlock(t *testing.T) {
	h := NewHeap(0x80000000, 1024)

	a := h.AllocateSmallBlock(4)
	b := h.AllocateSmallBlock(4)

	assert.Equal(t, uint32(0x80000000), a, "first block should sit at the heap base")
	assert.NotEqual(t, a, b)
	assert.Zero(t, a%8, "blocks should be 8-byte aligned")
	assert.Zero(t, b%8, "blocks should be 8-byte aligned")
}

func TestHeap_AllocateExhausted(t *testing.T) {
	h := NewHeap(0x1000, 16)

	require.NotZero(t, h.AllocateSmallBlock(16))
	assert.Zero(t, h.AllocateSmallBlock(1), "exhausted heap should return the null address")
}

func TestHeap_TranslateUnmappedPanics(t *testing.T) {
	h := NewHeap(0x1000, 64)

	assert.Panics(t, func() { h.Translate(0xFFF) })
	assert.Panics(t, func() { h.Translate(0x1040) })
	assert.NotPanics(t, func() { h.Translate(0x1000) })
}

func TestStoreUint32_GuestByteOrder(t *testing.T) {
	h := NewHeap(0x1000, 64)
	addr := h.AllocateSmallBlock(4)

	StoreUint32(h, addr, 0x11223344)

	raw := h.Translate(addr)[:4]
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, raw, "guest stores are big-endian")
	assert.Equal(t, uint32(0x11223344), LoadUint32(h, addr))
}

func TestStoreUint16_GuestByteOrder(t *testing.T) {
	h := NewHeap(0x1000, 64)
	addr := h.AllocateSmallBlock(2)

	StoreUint16(h, addr, 0xBEEF)

	raw := h.Translate(addr)[:2]
	assert.Equal(t, []byte{0xBE, 0xEF}, raw)
	assert.Equal(t, uint16(0xBEEF), LoadUint16(h, addr))
}

func TestZero(t *testing.T) {
	h := NewHeap(0x1000, 64)
	addr := h.AllocateSmallBlock(8)
	StoreUint32(h, addr, 0xFFFFFFFF)
	StoreUint32(h, addr+4, 0xFFFFFFFF)

	Zero(h, addr, 4)

	assert.Equal(t, uint32(0), LoadUint32(h, addr))
	assert.Equal(t, uint32(0xFFFFFFFF), LoadUint32(h, addr+4), "Zero must not clear past size")
}
