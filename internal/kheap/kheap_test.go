package kheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = 0x100000

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	h := New(testBase, 1<<20, 8)
	h.Init()
	return h
}

func TestAllocSimple(t *testing.T) {
	h := newTestHeap(t)

	a := h.Alloc(16)
	b := h.Alloc(16)
	c := h.Alloc(16)

	assert.EqualValues(t, testBase, a)
	assert.EqualValues(t, testBase+0x10, b)
	assert.EqualValues(t, testBase+0x20, c)

	h.Validate()
}

func TestFreeThenAllocSmallerReusesHole(t *testing.T) {
	h := newTestHeap(t)

	a := h.Alloc(16)
	b := h.Alloc(16)
	c := h.Alloc(16)
	_ = a
	_ = c

	h.Free(b)
	d := h.Alloc(8)

	assert.EqualValues(t, b, d)
	h.Validate()
}

func TestAllocSplitsRemainingHole(t *testing.T) {
	h := newTestHeap(t)

	a := h.Alloc(16)
	b := h.Alloc(16)
	c := h.Alloc(16)
	_ = a
	_ = c

	h.Free(b)
	d := h.Alloc(8) // leaves 8-byte hole at b+8

	e := h.Alloc(6)
	assert.EqualValues(t, d+8, e)
	h.Validate()
}

func TestAllocAppendsPastLastBlock(t *testing.T) {
	h := newTestHeap(t)

	h.Alloc(16) // a
	b := h.Alloc(16)
	h.Alloc(16) // c

	h.Free(b)
	h.Alloc(8) // d, reuses b's hole
	h.Alloc(6) // e, shrinks the remaining hole

	f := h.Alloc(16)
	assert.EqualValues(t, testBase+0x30, f)
	h.Validate()
}

func TestFreeCoalescesWithFreeLeftRemainder(t *testing.T) {
	h := newTestHeap(t)

	a := h.Alloc(16)
	b := h.Alloc(16)
	c := h.Alloc(16)

	h.Free(a)
	h.Free(c)

	g := h.Alloc(4)
	hh := h.Alloc(4)

	// g lands on a's block (slot 0 is scanned first). Where hh lands depends
	// on the descriptor-array scan order, not address order, so only its
	// distinctness from g is asserted here.
	assert.EqualValues(t, testBase, g)
	assert.NotEqual(t, g, hh)

	// b's left neighbor is the free remainder of a's block split by g; its
	// right neighbor is busy, so Free merges it leftward only.
	h.Free(b)
	h.Validate()
}

func TestAllocAddressesNeverOverlap(t *testing.T) {
	h := newTestHeap(t)

	seen := map[uintptr]bool{}
	var addrs []uintptr
	for i := 0; i < 5; i++ {
		a := h.Alloc(uintptr(4 + i))
		require.False(t, seen[a], "address %#x reused while still allocated", a)
		seen[a] = true
		addrs = append(addrs, a)
	}
	h.Validate()
}

func TestAllocFreeRoundTripIsByteIdentical(t *testing.T) {
	h := newTestHeap(t)
	a := h.Alloc(16)
	h.Alloc(16)
	h.Free(a) // leaves an isolated free block the size of a, no neighbors to merge with

	before := h.computeChecksum()
	p := h.Alloc(16) // exact-size match: reuses a's slot with no structural change
	h.Free(p)
	after := h.computeChecksum()

	assert.Equal(t, before, after, "heap must return to its prior state after a no-op alloc/free pair")
}

func TestFreeUnknownAddressPanics(t *testing.T) {
	h := newTestHeap(t)
	h.Alloc(16)

	assert.Panics(t, func() {
		h.Free(testBase + 0x999)
	})
}

func TestAllocExhaustsDescriptorTable(t *testing.T) {
	h := New(testBase, 1<<20, 2)
	h.Init()

	h.Alloc(16)
	h.Alloc(16)

	assert.Panics(t, func() {
		h.Alloc(16)
	})
}

func TestAllocExceedsHeapLimit(t *testing.T) {
	h := New(testBase, 64, 8)
	h.Init()

	assert.Panics(t, func() {
		h.Alloc(128)
	})
}

func TestDoubleFreePanics(t *testing.T) {
	h := newTestHeap(t)
	p := h.Alloc(16)
	h.Free(p)

	assert.Panics(t, func() {
		h.Free(p)
	})
}
