package kheap

import (
	"encoding/binary"

	"github.com/sigurn/crc16"

	"github.com/nagayev/kcore/internal/kerrors"
)

// crcTable is computed once; CRC-16/CCITT-FALSE is the variant tinygo
// itself reaches for when it needs a cheap firmware-image checksum.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// firstValid returns the index of the first valid descriptor in address
// order by walking prev links back from any valid entry, or noEntry if the
// heap is empty.
func (h *Heap) firstValid() int {
	for i := range h.entries {
		if !h.entries[i].isValid {
			continue
		}
		j := i
		for h.entries[j].prev != noEntry {
			j = h.entries[j].prev
		}
		return j
	}
	return noEntry
}

// Validate walks the address-ordered chain and confirms the heap's
// structural invariants hold (bounds, no holes, no adjacent free blocks,
// correct head), then compares the chain's CRC-16 against the value
// recorded after the last mutation. Any violation raises HEAP_CORRUPT.
// This is never called implicitly by Alloc/Free; HEAP_CORRUPT comes from
// an explicit validator call. Callers (such as tests) invoke it when they
// want the check.
func (h *Heap) Validate() {
	head := h.firstValid()
	if head == noEntry {
		if h.computeChecksum() != h.checksum {
			kerrors.Raise(kerrors.HeapCorrupt, "checksum mismatch on empty heap")
		}
		return
	}

	if h.entries[head].prev != noEntry {
		kerrors.Raise(kerrors.HeapCorrupt, "head entry %d has a prev link", head)
	}
	if h.entries[head].addr != h.base {
		kerrors.Raise(kerrors.HeapCorrupt, "head entry %d starts at %#x, want %#x", head, h.entries[head].addr, h.base)
	}

	seenBusy := map[int]bool{}
	prevFree := false
	i := head
	for {
		e := h.entries[i]
		if e.addr < h.base || e.addr+e.size > h.limit {
			kerrors.Raise(kerrors.HeapCorrupt, "entry %d [%#x,%#x) escapes heap bounds", i, e.addr, e.addr+e.size)
		}
		if !e.isBusy && prevFree {
			kerrors.Raise(kerrors.HeapCorrupt, "two adjacent free blocks at entry %d", i)
		}
		prevFree = !e.isBusy
		seenBusy[i] = true

		if e.next == noEntry {
			break
		}
		next := h.entries[e.next]
		if next.addr != e.addr+e.size {
			kerrors.Raise(kerrors.HeapCorrupt, "hole between entry %d and %d", i, e.next)
		}
		if next.prev != i {
			kerrors.Raise(kerrors.HeapCorrupt, "entry %d's next (%d) does not point back", i, e.next)
		}
		i = e.next
	}

	for idx := range h.entries {
		if h.entries[idx].isValid && !seenBusy[idx] {
			kerrors.Raise(kerrors.HeapCorrupt, "entry %d is valid but unreachable from the chain", idx)
		}
	}

	if h.computeChecksum() != h.checksum {
		kerrors.Raise(kerrors.HeapCorrupt, "checksum mismatch: chain was mutated without going through Alloc/Free")
	}
}

// computeChecksum hashes the address-ordered (addr, size, isBusy) triplets
// of every live block. It's a cheap way to notice "something reached into
// the table and mutated it outside Alloc/Free," on top of the structural
// walk Validate already does.
func (h *Heap) computeChecksum() uint16 {
	head := h.firstValid()
	if head == noEntry {
		return crc16.Checksum(nil, crcTable)
	}

	var buf []byte
	i := head
	for {
		e := h.entries[i]
		var rec [17]byte
		binary.LittleEndian.PutUint64(rec[0:8], uint64(e.addr))
		binary.LittleEndian.PutUint64(rec[8:16], uint64(e.size))
		if e.isBusy {
			rec[16] = 1
		}
		buf = append(buf, rec[:]...)
		if e.next == noEntry {
			break
		}
		i = e.next
	}
	return crc16.Checksum(buf, crcTable)
}
